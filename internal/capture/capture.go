package capture

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Settings configure a Service. MaxConcurrentSessions caps the sessions a Service holds at
// once; Headless and RootPath are applied to the browser through PlaywrightConfig.WithSettings.
type Settings struct {
	MaxConcurrentSessions int
	Headless              bool
	RootPath              string
	BlacklistURLPatterns  []string
	ContentReplacements   map[string]string
	ElementsToRemove      []string
}

// Clone returns a copy that shares no slices or maps with s.
func (s Settings) Clone() Settings {
	s.BlacklistURLPatterns = slices.Clone(s.BlacklistURLPatterns)
	s.ContentReplacements = maps.Clone(s.ContentReplacements)
	s.ElementsToRemove = slices.Clone(s.ElementsToRemove)
	return s
}

func DefaultSettings() Settings {
	return Settings{
		MaxConcurrentSessions: 1,
		Headless:              true,
		BlacklistURLPatterns:  []string{"/telegram-widget.js"},
	}
}

type Request struct {
	URL string
}

// Result carries either Image or Err, never both.
type Result struct {
	Image []byte
	Err   *Error
}

func (r Result) OK() bool {
	return r.Err == nil
}

type ErrorKind string

const (
	InvalidURLError         ErrorKind = "InvalidUrlError"
	SessionAcquisitionError ErrorKind = "SessionAcquisitionError"
	NavigationError         ErrorKind = "NavigationError"
	ExtractionError         ErrorKind = "ExtractionError"
	NoPageError             ErrorKind = "NoPageError"
	ScreenshotError         ErrorKind = "ScreenshotError"
)

type Error struct {
	Kind ErrorKind
	Err  error
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Capturer interface {
	Capture(ctx context.Context, request Request) Result
}
