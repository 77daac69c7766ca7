package capture

import (
	"context"
)

// SessionPool hands out browser sessions, blocking while the concurrency cap is reached.
type SessionPool interface {
	Acquire(ctx context.Context) (Session, error)
}

type Session interface {
	NewPage(ctx context.Context) (Page, error)
	// Close releases the browser and its pool slot. Calling it more than once is a no-op.
	Close() error
}

type Page interface {
	Route(pattern string, handler func(Route)) error
	// Goto navigates and waits until the network is idle.
	Goto(url string) error
	// QuerySelector returns nil without error when nothing matches.
	QuerySelector(selector string) (Element, error)
	QuerySelectorAll(selector string) ([]Element, error)
	// Screenshot captures the full scrollable page as PNG with a transparent background.
	Screenshot() ([]byte, error)
	Close() error
}

type Element interface {
	Evaluate(expression string, arg any) (any, error)
	GetAttribute(name string) (string, error)
	// Screenshot captures the element as PNG with a transparent background.
	Screenshot() ([]byte, error)
}

type Route interface {
	URL() string
	Abort() error
	Continue() error
}
