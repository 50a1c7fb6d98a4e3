// Package resolver picks the first locator of an ordered candidate list that
// appears on a page.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/recoveryfinder/browser"
	"github.com/use-agent/recoveryfinder/models"
)

// Resolve tries candidates strictly in order, giving each an equal share of
// total, and returns the first one present. Earlier candidates win even if a
// later one would have matched sooner. Fails with NO_CANDIDATE_MATCHED, or
// SESSION_CLOSED when the page died while waiting.
func Resolve(ctx context.Context, page browser.Page, candidates []browser.Locator, total time.Duration) (browser.Locator, error) {
	if len(candidates) == 0 {
		return browser.Locator{}, models.NewScrapeError(models.ErrCodeNoCandidate, "empty candidate list", nil)
	}
	slice := total / time.Duration(len(candidates))

	var lastErr error
	for i, loc := range candidates {
		err := page.WaitFor(ctx, loc, slice)
		if err == nil {
			slog.Info("locator resolved", "locator", loc.String(), "candidate", i+1, "of", len(candidates))
			return loc, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, browser.ErrPageClosed) || models.IsSessionClosed(err):
			return browser.Locator{}, models.NewScrapeError(models.ErrCodeSessionClosed, "page closed while resolving "+loc.String(), err)
		case ctx.Err() != nil:
			return browser.Locator{}, models.NewScrapeError(models.ErrCodeTimeout, "resolution canceled", ctx.Err())
		}
		if i < len(candidates)-1 {
			slog.Info("locator not found, trying next", "locator", loc.String(), "timeout", slice, "error", err)
		}
	}
	return browser.Locator{}, models.NewScrapeError(
		models.ErrCodeNoCandidate,
		fmt.Sprintf("none of %d candidates matched within %s", len(candidates), total),
		lastErr,
	)
}
