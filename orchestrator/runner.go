// Package orchestrator drives one run end to end: search, manual challenge,
// results, then every row in order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/use-agent/recoveryfinder/browser"
	"github.com/use-agent/recoveryfinder/config"
	"github.com/use-agent/recoveryfinder/engine"
	"github.com/use-agent/recoveryfinder/extract"
	"github.com/use-agent/recoveryfinder/layout"
	"github.com/use-agent/recoveryfinder/models"
	"github.com/use-agent/recoveryfinder/pacing"
	"github.com/use-agent/recoveryfinder/resolver"
	"github.com/use-agent/recoveryfinder/row"
	"github.com/use-agent/recoveryfinder/session"
	"github.com/use-agent/recoveryfinder/sink"
	"github.com/use-agent/recoveryfinder/site"
)

// Runner executes a single run. It is not reusable.
type Runner struct {
	cfg       *config.Config
	sessions  *session.Manager
	processor *row.Processor
	pacer     *pacing.Controller
	snapshots extract.Snapshotter
	out       *sink.Once
	progress  *Progress

	sess      *session.Session
	lastKnown string
}

// New wires a Runner. snapshots may be nil.
func New(runID string, cfg *config.Config, launcher browser.Launcher, out sink.Sink, snapshots extract.Snapshotter) *Runner {
	pacer := pacing.New(cfg.Pacing)
	return &Runner{
		cfg:       cfg,
		sessions:  session.NewManager(launcher, cfg.Browser, cfg.Search.EntryURL, cfg.Timing.NavigationTimeout),
		processor: row.NewProcessor(cfg.Timing, cfg.Extract, extract.NewEngine(cfg.Extract, snapshots), snapshots, pacer),
		pacer:     pacer,
		snapshots: snapshots,
		out:       sink.NewOnce(out),
		progress:  NewProgress(runID),
	}
}

// Progress returns the run's live status tracker.
func (r *Runner) Progress() *Progress { return r.progress }

// Run executes the run. The sink is closed and the session released on
// every path. The returned error carries RUN_FATAL.
func (r *Runner) Run(ctx context.Context) (models.RunStatus, error) {
	slog.Info("run starting", "run_id", r.progress.Status().RunID)

	err := r.run(ctx)
	if err != nil {
		err = r.fail(ctx, err)
	}

	if cerr := r.out.Close(); cerr != nil {
		slog.Error("closing output failed", "error", cerr)
		if err == nil {
			err = models.NewScrapeError(models.ErrCodeRunFatal, "output not finalized",
				models.NewScrapeError(models.ErrCodeSink, "close", cerr))
		}
	}
	r.sessions.Release(r.sess)
	r.progress.Finish(err)

	status := r.progress.Status()
	if err != nil {
		slog.Error("run failed", "run_id", status.RunID, "processed", status.Processed, "error", err)
		return status, err
	}
	slog.Info("run completed",
		"run_id", status.RunID,
		"processed", status.Processed,
		"written", r.out.Count(),
		"priced", status.Priced,
		"recoveries", status.Recoveries,
	)
	return status, nil
}

// fail captures the final snapshot and wraps err as RUN_FATAL.
func (r *Runner) fail(ctx context.Context, err error) error {
	if r.sess.Alive() && r.snapshots != nil {
		r.snapshots.Capture(context.WithoutCancel(ctx), r.sess.Page, "critical-error", "error")
	}
	if models.HasCode(err, models.ErrCodeRunFatal) {
		return err
	}
	return models.NewScrapeError(models.ErrCodeRunFatal, "run aborted", err)
}

func (r *Runner) run(ctx context.Context) error {
	sess, err := r.sessions.Open(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	r.sess = sess

	if err := r.submitSearch(ctx); err != nil {
		return err
	}

	r.progress.SetState(models.StateAwaitingManualChallenge)
	slog.Info("waiting for the challenge to be solved manually", "window", r.cfg.Search.ChallengeWait)
	if err := engine.Sleep(ctx, r.cfg.Search.ChallengeWait); err != nil {
		return err
	}

	r.progress.SetState(models.StateResultsResolving)
	if err := r.openResults(ctx); err != nil {
		return err
	}

	rowsLoc, err := r.resolveTable(ctx)
	if err != nil {
		return err
	}
	table := row.NewTable(rowsLoc)
	count, err := table.Len(ctx, r.sess.Page)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	slog.Info("data rows found", "count", count, "locator", rowsLoc.String())
	if count == 0 {
		if r.snapshots != nil {
			r.snapshots.Capture(ctx, r.sess.Page, "no-data-rows", "debug")
		}
		return models.NewScrapeError(models.ErrCodeRunFatal, "no data rows found in results table", nil)
	}

	return r.iterate(ctx, table, count)
}

// submitSearch opens the entry page and fills the search form.
func (r *Runner) submitSearch(ctx context.Context) error {
	page := r.sess.Page
	slog.Info("opening search page", "url", r.cfg.Search.EntryURL)

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.Timing.NavigationTimeout)
	defer cancel()
	if err := page.Navigate(navCtx, r.cfg.Search.EntryURL); err != nil {
		return fmt.Errorf("open search page: %w", err)
	}

	if err := page.Fill(ctx, site.FirstName, r.cfg.Search.FirstName); err != nil {
		return fmt.Errorf("fill first name: %w", err)
	}
	if err := page.Fill(ctx, site.LastName, r.cfg.Search.LastName); err != nil {
		return fmt.Errorf("fill last name: %w", err)
	}
	if err := page.SelectOption(ctx, site.State, r.cfg.Search.State); err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	r.progress.SetState(models.StateSearchSubmitted)
	return nil
}

// openResults clicks search and races a new tab against results rendering
// in place. The winner becomes the session's page.
func (r *Runner) openResults(ctx context.Context) error {
	page := r.sess.Page
	slog.Info("clicking search")

	wait := page.WaitNewPage(ctx, r.cfg.Timing.ResultsTimeout)
	if err := page.Click(ctx, site.SearchButton, true); err != nil {
		return fmt.Errorf("click search: %w", err)
	}

	results, branch, err := engine.First(ctx,
		engine.Branch[browser.Page]{Name: "new tab", Run: func(ctx context.Context) (browser.Page, error) {
			np, err := awaitPage(ctx, wait)
			if err != nil {
				return nil, err
			}
			if err := np.WaitLoad(ctx, r.cfg.Timing.NavigationTimeout); err != nil {
				slog.Warn("results tab slow to load", "error", err)
			}
			return np, nil
		}},
		engine.Branch[browser.Page]{Name: "in place", Run: func(ctx context.Context) (browser.Page, error) {
			if err := page.WaitFor(ctx, site.ResultsRendered, r.cfg.Timing.ResultsTimeout); err != nil {
				return nil, err
			}
			return page, nil
		}},
	)
	switch {
	case err == nil:
		slog.Info("results surface resolved", "via", branch, "url", results.URL())
	case page.Closed():
		return models.NewScrapeError(models.ErrCodeSessionClosed, "search page closed", err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		slog.Warn("no results surface detected, using the search page", "error", err)
		results = page
	}

	r.sess.Page = results
	r.lastKnown = results.URL()
	return nil
}

// awaitPage stops waiting for a new page once ctx is done.
func awaitPage(ctx context.Context, wait func() (browser.Page, error)) (browser.Page, error) {
	type opened struct {
		page browser.Page
		err  error
	}
	ch := make(chan opened, 1)
	go func() {
		p, err := wait()
		ch <- opened{p, err}
	}()
	select {
	case o := <-ch:
		return o.page, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveTable finds the row locator: the fixed-position probe first, then
// the ordered candidates.
func (r *Runner) resolveTable(ctx context.Context) (browser.Locator, error) {
	page := r.sess.Page
	slog.Info("waiting for results table (fast mode)")
	err := page.WaitFor(ctx, site.FastProbe, r.cfg.Timing.FastProbeTimeout)
	if err == nil {
		slog.Info("found table (fast mode)")
		return site.FastRows, nil
	}
	if errors.Is(err, browser.ErrPageClosed) {
		return browser.Locator{}, models.NewScrapeError(models.ErrCodeSessionClosed, "results page closed", err)
	}

	slog.Info("fast wait failed, falling back to candidate search", "error", err)
	loc, err := resolver.Resolve(ctx, page, site.RowCandidates, r.cfg.Timing.TableTimeout)
	if err != nil {
		if r.snapshots != nil {
			r.snapshots.Capture(ctx, page, "no-results-table", "debug")
		}
		return browser.Locator{}, models.NewScrapeError(models.ErrCodeRunFatal, "no results table found", err)
	}
	return loc, nil
}

// iterate processes rows 0..min(count, MaxRows)-1 in order.
func (r *Runner) iterate(ctx context.Context, table *row.Table, count int) error {
	limit := count
	if r.cfg.Extract.MaxRows > 0 && limit > r.cfg.Extract.MaxRows {
		limit = r.cfg.Extract.MaxRows
	}

	res := row.Results{Location: r.lastKnown}
	if html, err := r.sess.Page.HTML(ctx); err == nil {
		res.Fingerprint = layout.FingerprintDOM(html)
	}
	r.progress.Begin(limit, r.lastKnown)

	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.ensureAlive(ctx); err != nil {
			return err
		}

		rec, perr := r.processor.Process(ctx, r.sess, row.Descriptor{Index: i, Total: count, Table: table}, res)
		if err := r.out.Append(rec); err != nil {
			return models.NewScrapeError(models.ErrCodeRunFatal, fmt.Sprintf("write row %d", i+1), err)
		}
		r.progress.RowDone(rec.HasPrice())

		if models.IsSessionClosed(perr) {
			slog.Warn("session closed while processing row, recovering", "row", i+1, "error", perr)
			if err := r.ensureAlive(ctx); err != nil {
				return err
			}
		}

		if err := r.pacer.AfterRow(ctx, i); err != nil {
			return err
		}
	}
	slog.Info("all rows processed", "rows", limit)
	return nil
}

func (r *Runner) ensureAlive(ctx context.Context) error {
	next, err := r.sessions.EnsureAlive(ctx, r.sess, r.lastKnown)
	if err != nil {
		return fmt.Errorf("recover session: %w", err)
	}
	if next != r.sess {
		r.sess = next
		r.progress.Recovered()
	}
	return nil
}
