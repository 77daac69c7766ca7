package capture

import (
	"net/url"
	"strings"
)

const (
	// PlatformHost serves the embeddable post widgets.
	PlatformHost = "t.me"

	EmbedParam = "embed"
	EmbedValue = "1"
)

// Normalizer rewrites input URLs into the form the pipeline navigates to.
type Normalizer struct {
	// PlatformHosts get the embed flag; subdomains match too.
	PlatformHosts []string
	// EmbedAll adds the embed flag regardless of host.
	EmbedAll bool
}

// Normalize returns false when raw is not an absolute URL with a host. When nothing needs
// rewriting raw is returned as is.
func (n Normalizer) Normalize(raw string, segments ...string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", false
	}

	changed := insertSegments(u, segments)

	if (n.EmbedAll || n.IsPlatformHost(u.Hostname())) && !u.Query().Has(EmbedParam) {
		flag := EmbedParam + "=" + EmbedValue
		if u.RawQuery == "" {
			u.RawQuery = flag
		} else {
			u.RawQuery += "&" + flag
		}
		changed = true
	}

	if !changed {
		return raw, true
	}
	return u.String(), true
}

func (n Normalizer) IsPlatformHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range n.PlatformHosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func insertSegments(u *url.URL, segments []string) bool {
	var prefix []string
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			prefix = append(prefix, s)
		}
	}
	if len(prefix) == 0 {
		return false
	}

	joined := "/" + strings.Join(prefix, "/")
	if u.Path == joined || strings.HasPrefix(u.Path, joined+"/") {
		return false
	}

	u.Path = joined + "/" + strings.TrimPrefix(u.Path, "/")
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	return true
}
