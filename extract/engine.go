package extract

import (
	"context"
	"errors"
	"log/slog"

	"github.com/use-agent/recoveryfinder/browser"
	"github.com/use-agent/recoveryfinder/config"
	"github.com/use-agent/recoveryfinder/engine"
	"github.com/use-agent/recoveryfinder/models"
	"github.com/use-agent/recoveryfinder/resolver"
	"github.com/use-agent/recoveryfinder/site"
)

// Snapshotter records diagnostics for a page that yielded no price.
type Snapshotter interface {
	// Capture saves a snapshot and returns its path, or "" if nothing was written.
	Capture(ctx context.Context, page browser.Page, subject, reason string) string
	// Mentions reports which needles occur in the page's visible text.
	Mentions(ctx context.Context, page browser.Page, needles ...string) map[string]bool
}

// Engine extracts a price from a detail view, trying the live DOM, then a
// static copy of the markup, then the payload carried in the page URL.
type Engine struct {
	cfg       config.ExtractConfig
	snapshots Snapshotter
	locators  []browser.Locator
	markup    []string
}

// NewEngine returns an Engine using the site's price locators. snapshots
// may be nil.
func NewEngine(cfg config.ExtractConfig, snapshots Snapshotter) *Engine {
	return &Engine{
		cfg:       cfg,
		snapshots: snapshots,
		locators:  site.PriceLocators,
		markup:    site.PriceMarkup,
	}
}

// Extract runs up to maxAttempts attempts on page. subject labels logs and
// snapshots. It never fails: a missing price is an outcome, not an error.
func (e *Engine) Extract(ctx context.Context, page browser.Page, subject string, maxAttempts int) models.Outcome {
	policy := engine.Policy{MaxAttempts: maxAttempts, Delay: e.cfg.RetryDelay}
	outcome, err := engine.Retry(ctx, policy, func(ctx context.Context, attempt int) (models.Outcome, error) {
		out, err := e.attempt(ctx, page)
		if err != nil {
			slog.Info("price not found, retrying",
				"subject", subject, "attempt", attempt, "of", policy.MaxAttempts, "error", err)
		}
		return out, err
	})
	if err == nil {
		slog.Info("price found", "subject", subject, "price", outcome.Value, "source", outcome.Source)
		return outcome
	}

	if page.Closed() || ctx.Err() != nil {
		slog.Warn("price unavailable, detail view is gone", "subject", subject, "error", err)
		return models.Outcome{Kind: models.OutcomeUnavailable}
	}
	if e.snapshots == nil || !e.cfg.CaptureOnFailure {
		slog.Warn("price unavailable", "subject", subject, "error", err)
		return models.Outcome{Kind: models.OutcomeUnavailable}
	}

	path := e.snapshots.Capture(ctx, page, "price-not-found-"+subjectLabel(subject), "value")
	mentions := e.snapshots.Mentions(ctx, page, Currency, "Approx")
	slog.Warn("price unavailable after all attempts",
		"subject", subject,
		"url", page.URL(),
		"hasCurrency", mentions[Currency],
		"hasApprox", mentions["Approx"],
		"snapshot", path,
		"error", err,
	)
	return models.Outcome{Kind: models.OutcomeUnavailableCaptured, SnapshotPath: path}
}

// attempt runs every strategy once.
func (e *Engine) attempt(ctx context.Context, page browser.Page) (models.Outcome, error) {
	if err := page.WaitLoad(ctx, e.cfg.LoadTimeout); err != nil {
		if gone(err) {
			return models.Outcome{}, engine.Permanent(err)
		}
		slog.Debug("detail view did not finish loading, extracting anyway", "error", err)
	}
	if err := engine.Sleep(ctx, e.cfg.SettleDelay); err != nil {
		return models.Outcome{}, engine.Permanent(err)
	}

	if v, err := e.fromDOM(ctx, page); err != nil {
		return models.Outcome{}, engine.Permanent(err)
	} else if v != "" {
		return models.Outcome{Kind: models.OutcomeValue, Value: v, Source: "dom"}, nil
	}

	if html, err := page.HTML(ctx); err != nil {
		if gone(err) {
			return models.Outcome{}, engine.Permanent(err)
		}
		slog.Debug("markup unavailable", "error", err)
	} else if v, sel, err := PriceFromMarkup(html, e.markup); err != nil {
		slog.Debug("markup strategy failed", "error", err)
	} else if v != "" {
		slog.Debug("price matched in markup", "selector", sel)
		return models.Outcome{Kind: models.OutcomeValue, Value: v, Source: "markup"}, nil
	}

	v, err := ValueFromURL(page.URL(), e.cfg.PayloadParam, e.cfg.PayloadField)
	if err == nil {
		return models.Outcome{Kind: models.OutcomeValue, Value: v, Source: "url"}, nil
	}
	slog.Debug("url payload fallback failed", "error", err)

	return models.Outcome{}, models.NewScrapeError(models.ErrCodeValueUnavailable, "no strategy yielded a price", err)
}

// fromDOM returns "" when no locator yields a price, and an error only when
// the page is gone.
func (e *Engine) fromDOM(ctx context.Context, page browser.Page) (string, error) {
	for _, loc := range e.locators {
		if _, err := resolver.Resolve(ctx, page, []browser.Locator{loc}, e.cfg.SelectorTimeout); err != nil {
			if gone(err) || ctx.Err() != nil {
				return "", err
			}
			continue
		}
		els, err := page.Elements(ctx, loc)
		if err != nil {
			if gone(err) {
				return "", err
			}
			continue
		}
		for _, el := range els {
			text, err := el.Text(ctx)
			if err != nil {
				continue
			}
			if v, ok := ParsePrice(text); ok {
				slog.Debug("price matched on page", "locator", loc.String(), "text", text)
				return v, nil
			}
		}
	}
	return "", nil
}

func gone(err error) bool {
	return errors.Is(err, browser.ErrPageClosed) || models.IsSessionClosed(err)
}

// subjectLabel keeps ASCII letters and digits, at most 20 of them.
func subjectLabel(s string) string {
	out := make([]rune, 0, 20)
	for _, r := range s {
		if len(out) == 20 {
			break
		}
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			out = append(out, r)
		}
	}
	return string(out)
}
