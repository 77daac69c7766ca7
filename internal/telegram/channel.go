package telegram

import (
	"context"
	"net/url"
	"strings"

	"channel-snapshot/internal/capture"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const (
	Host = capture.PlatformHost
	// FeedSegment turns a channel or post path into the scrollable feed variant.
	FeedSegment = "s"
)

// FeedURL returns the feed variant of a channel URL, e.g. https://t.me/s/demo.
func FeedURL(raw string) (string, bool) {
	return capture.Normalizer{}.Normalize(raw, FeedSegment)
}

// isFeedPath reports feed pages, which keep the forwarded banner: ForwardedFrom is read from it.
func isFeedPath(path string) bool {
	return path == "/"+FeedSegment || strings.HasPrefix(path, "/"+FeedSegment+"/")
}

type hooks struct {
	capture.BaseHooks
}

func newHooks() hooks {
	return hooks{
		BaseHooks: capture.BaseHooks{
			Normalizer: capture.Normalizer{
				PlatformHosts: []string{Host},
				EmbedAll:      true,
			},
		},
	}
}

func (h hooks) ResolveTarget(pageURL string, page capture.Page) (capture.Element, error) {
	u, err := url.Parse(pageURL)
	if err != nil || !h.Normalizer.IsPlatformHost(u.Hostname()) {
		return h.BaseHooks.ResolveTarget(pageURL, page)
	}
	return page.QuerySelector(bubbleSelector)
}

// Sanitize cleans post markup in two barriers: in-place rewrites, then removals. Feed pages
// keep their forwarded banners since they are read back as post fields.
func (h hooks) Sanitize(ctx context.Context, pageURL string, page capture.Page) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return xerrors.Errorf("failed to parse page url: %w", err)
	}

	{
		eg, ctx := errgroup.WithContext(ctx)

		eg.Go(func() error {
			return capture.EvaluateAll(ctx, page, metaSelector, cleanMetaScript, nil)
		})

		eg.Go(func() error {
			return capture.EvaluateAll(ctx, page, textSelector, stripFooterScript, u.Host)
		})

		eg.Go(func() error {
			return capture.EvaluateAll(ctx, page, notSupportedSelector, revealUnsupportedMediaScript, nil)
		})

		if err := eg.Wait(); err != nil {
			return err
		}
	}

	remove := []string{notSupportedSelector}
	if !isFeedPath(u.Path) {
		remove = append(remove, forwardedSelector)
	}
	return capture.RemoveAll(ctx, page, remove...)
}

// ChannelCapture captures single posts and extracts channel feeds.
type ChannelCapture struct {
	*capture.Service
	log logr.Logger
}

func NewChannelCapture(settings capture.Settings, pool capture.SessionPool, log logr.Logger, metrics *capture.Metrics) (*ChannelCapture, error) {
	log = log.WithName("telegram")
	s, err := capture.NewService(settings, pool, newHooks(), log, metrics)
	if err != nil {
		return nil, xerrors.Errorf("failed to create capture service: %w", err)
	}
	return &ChannelCapture{
		Service: s,
		log:     log,
	}, nil
}
