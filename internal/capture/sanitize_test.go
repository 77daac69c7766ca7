package capture_test

import (
	"channel-snapshot/internal/capture"
	"channel-snapshot/internal/capture/capturetest"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/google/go-cmp/cmp"
)

func TestSanitize(t *testing.T) {
	t.Run("ReplacesAndRemoves", func(t *testing.T) {
		header := &capturetest.Element{}
		banner := &capturetest.Element{}
		secondBanner := &capturetest.Element{}
		page := &capturetest.Page{
			Elements: map[string][]*capturetest.Element{
				".header": {header},
				".banner": {banner, secondBanner},
			},
		}

		err := capture.Sanitize(context.Background(), page, map[string]string{".header": "<b>clean</b>"}, []string{".banner"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		evaluations := header.Evaluations()
		if len(evaluations) != 1 {
			t.Fatalf("expected 1 evaluation on header, got %d", len(evaluations))
		}
		if evaluations[0].Arg != "<b>clean</b>" {
			t.Errorf("expected replacement html, got %v", evaluations[0].Arg)
		}
		if len(banner.Evaluations()) != 1 {
			t.Errorf("expected first banner to be removed")
		}
		if len(secondBanner.Evaluations()) != 0 {
			t.Errorf("expected only the first match to be touched")
		}
	})

	t.Run("MissingSelectorIsSkipped", func(t *testing.T) {
		page := &capturetest.Page{}

		err := capture.Sanitize(context.Background(), page, map[string]string{".absent": "x"}, []string{".also-absent"})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("EvaluateFailureIsReported", func(t *testing.T) {
		broken := &capturetest.Element{
			EvaluateFunc: func(string, any) (any, error) {
				return nil, errors.New("detached")
			},
		}
		page := &capturetest.Page{
			Elements: map[string][]*capturetest.Element{".broken": {broken}},
		}

		if err := capture.Sanitize(context.Background(), page, nil, []string{".broken"}); err == nil {
			t.Errorf("expected error")
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		el := &capturetest.Element{}
		page := &capturetest.Page{
			Elements: map[string][]*capturetest.Element{".x": {el}},
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := capture.RemoveElements(ctx, page, []string{".x"}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(el.Evaluations()) != 0 {
			t.Errorf("expected no evaluation after cancellation")
		}
	})
}

func TestBlacklist(t *testing.T) {
	b := capture.NewBlacklist([]string{"/telegram-widget.js", "ads\\.example\\.com", "[unterminated"})

	cases := map[string]bool{
		"https://telegram.org/js/telegram-widget.js?22": true,
		"https://ads.example.com/pixel.gif":             true,
		"https://cdn.example.com/[unterminated/x":       true,
		"https://t.me/demo/1?embed=1":                   false,
	}
	for url, want := range cases {
		if got := b.Match(url); got != want {
			t.Errorf("Match(%q): expected %v, got %v", url, want, got)
		}
	}

	if !capture.NewBlacklist(nil).Empty() {
		t.Errorf("expected empty blacklist")
	}
}

func TestBlacklistInstall(t *testing.T) {
	var mu sync.Mutex
	var logs []string
	log := funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		logs = append(logs, args)
	}, funcr.Options{Verbosity: 1})

	page := &capturetest.Page{
		Requests:   []string{"https://ads.example.com/pixel.gif"},
		RouteError: errors.New("target closed"),
	}
	if err := capture.NewBlacklist([]string{"ads\\.example\\.com"}).Install(page, log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = page.Goto("https://t.me/demo/1")

	if diff := cmp.Diff([]string{"https://ads.example.com/pixel.gif"}, page.Aborted()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"https://t.me/demo/1"}, page.Fetched()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	mu.Lock()
	defer mu.Unlock()
	joined := strings.Join(logs, "\n")
	for _, msg := range []string{"failed to abort request", "failed to continue request"} {
		if !strings.Contains(joined, msg) {
			t.Errorf("expected %q to be logged, got %s", msg, joined)
		}
	}
}
