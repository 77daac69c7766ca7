package retry

import (
	"context"
	"errors"
	"time"

	"golang.org/x/xerrors"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the strategy gives up or ctx is
// done. The last error from fn is returned.
func Do(ctx context.Context, strategy Strategy, fn func(ctx context.Context) error) error {
	for n := uint(0); ; n++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}

		delay, giveUp := strategy.Delay(n)
		if giveUp {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return xerrors.Errorf("retry interrupted after %v: %w", err, ctx.Err())
		case <-timer.C:
		}
	}
}
