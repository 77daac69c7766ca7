package capture

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

// Service runs the capture pipeline: normalize, acquire, navigate, sanitize, screenshot,
// release. Failures never escape as panics or bare errors; they come back in the Result.
type Service struct {
	settings  Settings
	pool      SessionPool
	hooks     Hooks
	sessions  *semaphore.Weighted
	blacklist *Blacklist
	log       logr.Logger
	metrics   *Metrics
	tracer    trace.Tracer
}

func NewService(settings Settings, pool SessionPool, hooks Hooks, log logr.Logger, metrics *Metrics) (*Service, error) {
	if pool == nil {
		return nil, xerrors.New("session pool is required")
	}
	if hooks == nil {
		hooks = DefaultHooks()
	}
	if settings.MaxConcurrentSessions <= 0 {
		settings.MaxConcurrentSessions = 1
	}
	settings = settings.Clone()

	return &Service{
		settings:  settings,
		pool:      pool,
		hooks:     hooks,
		sessions:  semaphore.NewWeighted(int64(settings.MaxConcurrentSessions)),
		blacklist: NewBlacklist(settings.BlacklistURLPatterns),
		log:       log,
		metrics:   metrics,
		tracer:    otel.Tracer("channel-snapshot/capture"),
	}, nil
}

// Settings returns a copy; changing it does not affect the service.
func (s *Service) Settings() Settings {
	return s.settings.Clone()
}

func (s *Service) Capture(ctx context.Context, request Request) Result {
	ctx, span := s.tracer.Start(ctx, "capture", trace.WithAttributes(attribute.String("url", request.URL)))
	defer span.End()
	start := time.Now()

	result := s.capture(ctx, request)

	s.Observe(ctx, span, "capture", start, result.Err)
	return result
}

func (s *Service) capture(ctx context.Context, request Request) Result {
	url, ok := s.hooks.NormalizeURL(request.URL)
	if !ok {
		return Result{Err: newError(InvalidURLError, xerrors.Errorf("invalid url: %q", request.URL))}
	}

	var image []byte
	if e := s.WithPage(ctx, url, func(page Page) error {
		target, err := s.hooks.ResolveTarget(url, page)
		if err != nil {
			return newError(ExtractionError, xerrors.Errorf("failed to resolve capture target: %w", err))
		}

		if target != nil {
			image, err = target.Screenshot()
		} else {
			image, err = page.Screenshot()
		}
		if err != nil {
			return newError(ScreenshotError, xerrors.Errorf("failed to take screenshot: %w", err))
		}
		return nil
	}); e != nil {
		return Result{Err: e}
	}

	s.log.V(1).Info("captured", "url", url, "bytes", len(image))
	return Result{Image: image}
}

// WithPage opens a sanitized page on url, hands it to fn and releases the session on every
// exit path. Errors from fn that are not an *Error are reported as ExtractionError.
func (s *Service) WithPage(ctx context.Context, url string, fn func(page Page) error) (e *Error) {
	stage := SessionAcquisitionError
	defer func() {
		if r := recover(); r != nil {
			e = newError(stage, xerrors.Errorf("recovered: %v", r))
		}
	}()

	if err := s.sessions.Acquire(ctx, 1); err != nil {
		return newError(SessionAcquisitionError, xerrors.Errorf("failed to wait for a session: %w", err))
	}
	defer s.sessions.Release(1)

	session, err := s.pool.Acquire(ctx)
	if err != nil {
		return newError(SessionAcquisitionError, xerrors.Errorf("failed to acquire browser session: %w", err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.log.Error(err, "failed to release browser session", "url", url)
		}
	}()

	stage = NoPageError
	page, err := session.NewPage(ctx)
	if err != nil {
		return newError(NoPageError, xerrors.Errorf("failed to open page: %w", err))
	}
	if page == nil {
		return newError(NoPageError, xerrors.New("session produced no page"))
	}
	defer func() {
		if err := page.Close(); err != nil {
			s.log.V(1).Info("failed to close page", "url", url, "error", err.Error())
		}
	}()

	stage = SessionAcquisitionError
	if !s.blacklist.Empty() {
		if err := s.blacklist.Install(page, s.log); err != nil {
			return newError(SessionAcquisitionError, xerrors.Errorf("failed to install request blacklist: %w", err))
		}
	}

	stage = NavigationError
	if err := page.Goto(url); err != nil {
		return newError(NavigationError, xerrors.Errorf("failed to navigate to %s: %w", url, err))
	}

	stage = ExtractionError
	if err := Sanitize(ctx, page, s.settings.ContentReplacements, s.settings.ElementsToRemove); err != nil {
		return newError(ExtractionError, xerrors.Errorf("failed to sanitize page: %w", err))
	}
	if err := s.hooks.Sanitize(ctx, url, page); err != nil {
		return newError(ExtractionError, xerrors.Errorf("failed to apply page rules: %w", err))
	}

	if err := fn(page); err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return ce
		}
		return newError(ExtractionError, err)
	}
	return nil
}

// Observe finishes span and records the operation outcome.
func (s *Service) Observe(ctx context.Context, span trace.Span, operation string, start time.Time, e *Error) {
	if e != nil {
		span.RecordError(e)
		span.SetStatus(codes.Error, string(e.Kind))
		s.log.Info("operation failed", "operation", operation, "kind", string(e.Kind), "error", e.Error())
	}
	s.metrics.observe(ctx, operation, start, e)
}

func (s *Service) Tracer() trace.Tracer {
	return s.tracer
}
