package capture

import (
	"context"
)

// Hooks are the points where a specialization changes the capture pipeline.
type Hooks interface {
	NormalizeURL(raw string) (string, bool)
	// ResolveTarget returns the element to capture, or nil for the full page.
	ResolveTarget(url string, page Page) (Element, error)
	// Sanitize runs after the settings-driven sanitization.
	Sanitize(ctx context.Context, url string, page Page) error
}

// BaseHooks embeds the flag for platform hosts, captures the full page and adds no rules.
type BaseHooks struct {
	Normalizer Normalizer
}

// DefaultHooks recognize the platform hosts and change nothing else.
func DefaultHooks() BaseHooks {
	return BaseHooks{Normalizer: Normalizer{PlatformHosts: []string{PlatformHost}}}
}

func (h BaseHooks) NormalizeURL(raw string) (string, bool) {
	return h.Normalizer.Normalize(raw)
}

func (h BaseHooks) ResolveTarget(url string, page Page) (Element, error) {
	return nil, nil
}

func (h BaseHooks) Sanitize(ctx context.Context, url string, page Page) error {
	return nil
}
