package capture

import (
	"regexp"

	"github.com/go-logr/logr"
)

// Blacklist matches request URLs that must never be fetched.
type Blacklist struct {
	patterns []*regexp.Regexp
}

// NewBlacklist compiles each pattern as a regular expression, falling back to a literal
// substring match when the pattern is not a valid expression.
func NewBlacklist(patterns []string) *Blacklist {
	b := &Blacklist{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			re = regexp.MustCompile(regexp.QuoteMeta(p))
		}
		b.patterns = append(b.patterns, re)
	}
	return b
}

func (b *Blacklist) Match(url string) bool {
	for _, re := range b.patterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

func (b *Blacklist) Empty() bool {
	return len(b.patterns) == 0
}

// Install aborts every blacklisted request on page. It must run before navigation.
func (b *Blacklist) Install(page Page, log logr.Logger) error {
	return page.Route("**/*", func(route Route) {
		if b.Match(route.URL()) {
			if err := route.Abort(); err != nil {
				log.V(1).Info("failed to abort request", "url", route.URL(), "error", err.Error())
			}
			return
		}
		if err := route.Continue(); err != nil {
			log.V(1).Info("failed to continue request", "url", route.URL(), "error", err.Error())
		}
	})
}
