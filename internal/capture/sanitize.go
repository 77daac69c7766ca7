package capture

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const (
	replaceInnerHTMLScript = `(e, html) => { e.innerHTML = html }`
	removeElementScript    = `(e) => e.remove()`
)

// Sanitize replaces the inner HTML of the first match of every replacement selector and then
// detaches the first match of every remove selector. Selectors without a match are skipped.
// Both stages finish completely before Sanitize returns.
func Sanitize(ctx context.Context, page Page, replacements map[string]string, remove []string) error {
	{
		eg, ctx := errgroup.WithContext(ctx)

		for selector, html := range replacements {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return evaluateFirst(page, selector, replaceInnerHTMLScript, html)
			})
		}

		if err := eg.Wait(); err != nil {
			return err
		}
	}

	return RemoveElements(ctx, page, remove)
}

func RemoveElements(ctx context.Context, page Page, selectors []string) error {
	eg, ctx := errgroup.WithContext(ctx)

	for _, selector := range selectors {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return evaluateFirst(page, selector, removeElementScript, nil)
		})
	}

	return eg.Wait()
}

func evaluateFirst(page Page, selector string, script string, arg any) error {
	el, err := page.QuerySelector(selector)
	if err != nil {
		return xerrors.Errorf("failed to query %s: %w", selector, err)
	}
	if el == nil {
		return nil
	}
	if _, err := el.Evaluate(script, arg); err != nil {
		return xerrors.Errorf("failed to sanitize %s: %w", selector, err)
	}
	return nil
}

// EvaluateAll runs script against every match of selector concurrently.
func EvaluateAll(ctx context.Context, page Page, selector string, script string, arg any) error {
	elements, err := page.QuerySelectorAll(selector)
	if err != nil {
		return xerrors.Errorf("failed to query %s: %w", selector, err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, el := range elements {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := el.Evaluate(script, arg); err != nil {
				return xerrors.Errorf("failed to evaluate on %s: %w", selector, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// RemoveAll detaches every match of every selector.
func RemoveAll(ctx context.Context, page Page, selectors ...string) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, selector := range selectors {
		eg.Go(func() error {
			return EvaluateAll(ctx, page, selector, removeElementScript, nil)
		})
	}
	return eg.Wait()
}
