package capture_test

import (
	"channel-snapshot/internal/capture"
	"channel-snapshot/internal/capture/capturetest"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
)

type bubbleHooks struct {
	capture.BaseHooks
	panicOnSanitize bool
}

func (h bubbleHooks) ResolveTarget(url string, page capture.Page) (capture.Element, error) {
	return page.QuerySelector(".bubble")
}

func (h bubbleHooks) Sanitize(ctx context.Context, url string, page capture.Page) error {
	if h.panicOnSanitize {
		panic("boom")
	}
	return nil
}

// blockingHooks hold the first capture inside Sanitize until release is closed.
type blockingHooks struct {
	capture.BaseHooks
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (h *blockingHooks) Sanitize(ctx context.Context, url string, page capture.Page) error {
	first := false
	h.once.Do(func() { first = true })
	if first {
		close(h.entered)
		<-h.release
	}
	return nil
}

func newService(t *testing.T, settings capture.Settings, pool capture.SessionPool, hooks capture.Hooks) *capture.Service {
	t.Helper()
	s, err := capture.NewService(settings, pool, hooks, logr.Discard(), nil)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return s
}

func TestCapture(t *testing.T) {
	platform := capture.BaseHooks{Normalizer: capture.Normalizer{PlatformHosts: []string{"t.me"}}}

	t.Run("FullPageWhenNoTarget", func(t *testing.T) {
		page := &capturetest.Page{Image: []byte("full")}
		pool, session := capturetest.NewPool(page)
		s := newService(t, capture.DefaultSettings(), pool, platform)

		result := s.Capture(context.Background(), capture.Request{URL: "https://example.com/chan/2907"})
		if !result.OK() {
			t.Fatalf("unexpected error: %v", result.Err)
		}
		if diff := cmp.Diff([]byte("full"), result.Image); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		if page.FullPageScreenshots() != 1 {
			t.Errorf("expected full page screenshot")
		}
		if diff := cmp.Diff([]string{"https://example.com/chan/2907"}, page.Visited()); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		if session.Closed() != 1 || page.Closed() != 1 {
			t.Errorf("expected session and page to be released once, got %d and %d", session.Closed(), page.Closed())
		}
	})

	t.Run("ElementWhenTargetResolves", func(t *testing.T) {
		bubble := &capturetest.Element{Image: []byte("bubble")}
		page := &capturetest.Page{
			Image:    []byte("full"),
			Elements: map[string][]*capturetest.Element{".bubble": {bubble}},
		}
		pool, _ := capturetest.NewPool(page)
		s := newService(t, capture.DefaultSettings(), pool, bubbleHooks{BaseHooks: platform})

		result := s.Capture(context.Background(), capture.Request{URL: "https://t.me/demo/2907"})
		if diff := cmp.Diff([]byte("bubble"), result.Image); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		if page.FullPageScreenshots() != 0 {
			t.Errorf("expected no full page screenshot")
		}
		if diff := cmp.Diff([]string{"https://t.me/demo/2907?embed=1"}, page.Visited()); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("InvalidURL", func(t *testing.T) {
		pool, _ := capturetest.NewPool(&capturetest.Page{})
		s := newService(t, capture.DefaultSettings(), pool, platform)

		result := s.Capture(context.Background(), capture.Request{URL: "::nope"})
		if result.Err == nil || result.Err.Kind != capture.InvalidURLError {
			t.Fatalf("expected InvalidUrlError, got %v", result.Err)
		}
		if result.Image != nil {
			t.Errorf("expected no image with an error")
		}
		if pool.Acquired() != 0 {
			t.Errorf("expected no session to be acquired")
		}
	})

	t.Run("BlacklistedRequestsAreAborted", func(t *testing.T) {
		page := &capturetest.Page{
			Requests: []string{
				"https://telegram.org/js/telegram-widget.js?22",
				"https://t.me/css/widget.css",
			},
		}
		pool, _ := capturetest.NewPool(page)
		s := newService(t, capture.DefaultSettings(), pool, platform)

		if result := s.Capture(context.Background(), capture.Request{URL: "https://t.me/demo/1"}); !result.OK() {
			t.Fatalf("unexpected error: %v", result.Err)
		}
		if !page.RoutedBeforeNavigation() {
			t.Errorf("expected the route to be installed before navigation")
		}
		if n := page.FetchCount("telegram-widget.js"); n != 0 {
			t.Errorf("expected blacklisted resource to never be fetched, got %d", n)
		}
		if diff := cmp.Diff([]string{"https://telegram.org/js/telegram-widget.js?22"}, page.Aborted()); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		if page.FetchCount("widget.css") != 1 {
			t.Errorf("expected other requests to continue")
		}
	})

	t.Run("SettingsSanitizationRunsBeforeScreenshot", func(t *testing.T) {
		header := &capturetest.Element{}
		page := &capturetest.Page{
			Elements: map[string][]*capturetest.Element{".header": {header}},
		}
		pool, _ := capturetest.NewPool(page)
		settings := capture.DefaultSettings()
		settings.ContentReplacements = map[string]string{".header": "", ".absent": "x"}
		settings.ElementsToRemove = []string{".absent-too"}
		s := newService(t, settings, pool, platform)

		if result := s.Capture(context.Background(), capture.Request{URL: "https://example.com"}); !result.OK() {
			t.Fatalf("unexpected error: %v", result.Err)
		}
		if len(header.Evaluations()) != 1 {
			t.Errorf("expected header to be replaced")
		}
	})

	t.Run("FailuresBecomeResults", func(t *testing.T) {
		cases := []struct {
			name  string
			setup func() (*capturetest.Pool, *capturetest.Session)
			kind  capture.ErrorKind
		}{
			{
				"Acquire",
				func() (*capturetest.Pool, *capturetest.Session) {
					return &capturetest.Pool{AcquireError: errors.New("exhausted")}, nil
				},
				capture.SessionAcquisitionError,
			},
			{
				"NoPage",
				func() (*capturetest.Pool, *capturetest.Session) {
					session := &capturetest.Session{}
					return &capturetest.Pool{Session: session}, session
				},
				capture.NoPageError,
			},
			{
				"NewPage",
				func() (*capturetest.Pool, *capturetest.Session) {
					session := &capturetest.Session{NewPageError: errors.New("crashed")}
					return &capturetest.Pool{Session: session}, session
				},
				capture.NoPageError,
			},
			{
				"Navigation",
				func() (*capturetest.Pool, *capturetest.Session) {
					return capturetest.NewPool(&capturetest.Page{GotoError: errors.New("timeout")})
				},
				capture.NavigationError,
			},
			{
				"Query",
				func() (*capturetest.Pool, *capturetest.Session) {
					return capturetest.NewPool(&capturetest.Page{QueryError: errors.New("detached")})
				},
				capture.ExtractionError,
			},
			{
				"Screenshot",
				func() (*capturetest.Pool, *capturetest.Session) {
					return capturetest.NewPool(&capturetest.Page{ScreenshotError: errors.New("encode")})
				},
				capture.ScreenshotError,
			},
		}

		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				pool, session := c.setup()
				settings := capture.DefaultSettings()
				settings.ElementsToRemove = []string{".x"}
				s := newService(t, settings, pool, platform)

				result := s.Capture(context.Background(), capture.Request{URL: "https://example.com"})
				if result.Err == nil || result.Err.Kind != c.kind {
					t.Fatalf("expected %s, got %v", c.kind, result.Err)
				}
				if result.Image != nil {
					t.Errorf("expected no image with an error")
				}
				if session != nil && session.Closed() != 1 {
					t.Errorf("expected session to be released once, got %d", session.Closed())
				}
			})
		}
	})

	t.Run("PanicIsRecovered", func(t *testing.T) {
		page := &capturetest.Page{}
		pool, session := capturetest.NewPool(page)
		s := newService(t, capture.DefaultSettings(), pool, bubbleHooks{BaseHooks: platform, panicOnSanitize: true})

		result := s.Capture(context.Background(), capture.Request{URL: "https://example.com"})
		if result.Err == nil || result.Err.Kind != capture.ExtractionError {
			t.Fatalf("expected ExtractionError, got %v", result.Err)
		}
		if session.Closed() != 1 {
			t.Errorf("expected session to be released after panic")
		}
	})

	t.Run("SettingsAreCopied", func(t *testing.T) {
		settings := capture.DefaultSettings()
		settings.ElementsToRemove = []string{".a"}
		settings.ContentReplacements = map[string]string{".a": "<b>a</b>"}
		pool, _ := capturetest.NewPool(&capturetest.Page{})
		s := newService(t, settings, pool, nil)

		settings.ElementsToRemove[0] = ".b"
		if got := s.Settings().ElementsToRemove[0]; got != ".a" {
			t.Errorf("expected settings to be immutable, got %s", got)
		}

		got := s.Settings()
		got.ContentReplacements[".a"] = "changed"
		got.BlacklistURLPatterns[0] = "changed"
		got.ElementsToRemove[0] = "changed"

		again := s.Settings()
		if diff := cmp.Diff(map[string]string{".a": "<b>a</b>"}, again.ContentReplacements); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"/telegram-widget.js"}, again.BlacklistURLPatterns); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{".a"}, again.ElementsToRemove); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("DefaultHooksEmbedPlatformHost", func(t *testing.T) {
		page := &capturetest.Page{Image: []byte("full")}
		pool, _ := capturetest.NewPool(page)
		s := newService(t, capture.DefaultSettings(), pool, nil)

		_ = s.Capture(context.Background(), capture.Request{URL: "https://t.me/demo/1"})
		_ = s.Capture(context.Background(), capture.Request{URL: "https://example.com/demo/1"})
		want := []string{"https://t.me/demo/1?embed=1", "https://example.com/demo/1"}
		if diff := cmp.Diff(want, page.Visited()); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("SessionCap", func(t *testing.T) {
		hooks := &blockingHooks{entered: make(chan struct{}), release: make(chan struct{})}
		pool, session := capturetest.NewPool(&capturetest.Page{Image: []byte("full")})
		settings := capture.DefaultSettings()
		settings.MaxConcurrentSessions = 1
		s := newService(t, settings, pool, hooks)

		done := make(chan capture.Result, 1)
		go func() {
			done <- s.Capture(context.Background(), capture.Request{URL: "https://example.com/a"})
		}()
		<-hooks.entered

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		result := s.Capture(ctx, capture.Request{URL: "https://example.com/b"})
		if result.Err == nil || result.Err.Kind != capture.SessionAcquisitionError {
			t.Errorf("expected SessionAcquisitionError beyond the cap, got %v", result.Err)
		}
		if pool.Acquired() != 1 {
			t.Errorf("expected one pool session, got %d", pool.Acquired())
		}

		close(hooks.release)
		if first := <-done; !first.OK() {
			t.Errorf("unexpected error: %v", first.Err)
		}
		if session.Closed() != 1 {
			t.Errorf("expected session to be released once, got %d", session.Closed())
		}

		if result := s.Capture(context.Background(), capture.Request{URL: "https://example.com/c"}); !result.OK() {
			t.Errorf("expected the slot to be free, got %v", result.Err)
		}
	})
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	e := &capture.Error{Kind: capture.NavigationError, Err: cause}
	if !errors.Is(e, cause) {
		t.Errorf("expected error to unwrap to its cause")
	}
	if diff := cmp.Diff("NavigationError: cause", e.Error()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
