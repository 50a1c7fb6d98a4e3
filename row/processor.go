// Package row turns one results-table row into a Record.
package row

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/use-agent/recoveryfinder/browser"
	"github.com/use-agent/recoveryfinder/config"
	"github.com/use-agent/recoveryfinder/engine"
	"github.com/use-agent/recoveryfinder/extract"
	"github.com/use-agent/recoveryfinder/layout"
	"github.com/use-agent/recoveryfinder/models"
	"github.com/use-agent/recoveryfinder/session"
	"github.com/use-agent/recoveryfinder/site"
)

// Descriptor identifies a row by its 0-based position among the data rows
// of Table.
type Descriptor struct {
	Index int
	Total int
	Table *Table
}

// Results is what the processor knows about the results view.
type Results struct {
	// Location is the address to return to after an in-place detail view.
	Location string
	// Fingerprint is the layout of the results view, 0 when unknown.
	Fingerprint uint64
}

// Throttler bounds detail-view navigations.
type Throttler interface {
	Throttle(ctx context.Context) error
}

// Processor reads rows and resolves their prices.
type Processor struct {
	timing    config.TimingConfig
	extractor config.ExtractConfig
	engine    *extract.Engine
	snapshots extract.Snapshotter
	throttle  Throttler
}

// NewProcessor returns a Processor. snapshots and throttle may be nil.
func NewProcessor(timing config.TimingConfig, ex config.ExtractConfig, eng *extract.Engine, snapshots extract.Snapshotter, throttle Throttler) *Processor {
	return &Processor{
		timing:    timing,
		extractor: ex,
		engine:    eng,
		snapshots: snapshots,
		throttle:  throttle,
	}
}

// Process always returns a record, with Unavailable in every field it could
// not fill. The only error it returns carries SESSION_CLOSED: the record is
// still valid, but the session must be recovered before the next row.
func (p *Processor) Process(ctx context.Context, sess *session.Session, desc Descriptor, res Results) (models.Record, error) {
	rec := models.EmptyRecord()
	page := sess.Page
	n := desc.Index + 1

	rowEl, err := desc.Table.Row(ctx, page, desc.Index)
	if err != nil {
		if gone(page, err) {
			return rec, closed(n, err)
		}
		slog.Error("row not found", "row", n, "error", err)
		p.snapshot(ctx, page, fmt.Sprintf("row-error-%d", n), "error")
		return rec, nil
	}

	slog.Info("scraping row", "row", n, "of", desc.Total, "percent", percent(desc.Index, desc.Total))
	if err := rowEl.ScrollIntoView(ctx); err != nil {
		slog.Debug("scroll into view failed", "row", n, "error", err)
	}
	if err := engine.Sleep(ctx, p.timing.RowSettle); err != nil {
		return rec, nil
	}

	link := p.href(ctx, rowEl)
	fields := []*string{&rec.FullName, &rec.FatherName, &rec.Address, &rec.Country, &rec.State, &rec.City}
	for i, col := range site.Columns {
		*fields[i] = p.text(ctx, rowEl, n, col)
	}
	if page.Closed() {
		return rec, closed(n, browser.ErrPageClosed)
	}

	if link == models.Unavailable || !strings.Contains(link, p.extractor.DetailPattern) {
		slog.Debug("row has no detail link", "row", n, "link", link)
		return rec, nil
	}

	outcome, navigated, err := p.detail(ctx, sess, rowEl, link, rec.FullName, res)
	rec.Price = outcome.Price()
	if navigated || err != nil {
		// the results view was reloaded or may have moved
		desc.Table.Invalidate()
	}
	if err != nil {
		if gone(page, err) {
			return rec, closed(n, err)
		}
		slog.Warn("error fetching price", "row", n, "subject", rec.FullName, "error", err)
		p.snapshot(ctx, page, fmt.Sprintf("row-%d-click-error", n), "error")
	}
	return rec, nil
}

// detail opens the row's detail view, extracts the price and puts the
// results view back. navigated reports whether the results page left the
// results view. The outcome is meaningful even when err is not nil.
func (p *Processor) detail(ctx context.Context, sess *session.Session, rowEl browser.Element, link, subject string, res Results) (outcome models.Outcome, navigated bool, err error) {
	unavailable := models.Outcome{Kind: models.OutcomeUnavailable}
	page := sess.Page

	values, err := rowEl.Find(ctx, site.ValueLink)
	if err != nil {
		return unavailable, false, err
	}
	if len(values) == 0 {
		slog.Warn("value link not found", "subject", subject)
		return unavailable, false, nil
	}
	value := values[0]

	slog.Info("opening detail view", "subject", subject)
	if err := value.ScrollIntoView(ctx); err != nil {
		slog.Debug("scroll to value link failed", "error", err)
	}
	if err := engine.Sleep(ctx, p.timing.ClickSettle); err != nil {
		return unavailable, false, err
	}
	if err := value.SetAttr(ctx, "target", "_blank"); err != nil {
		slog.Debug("could not force a new tab", "error", err)
	}
	if p.throttle != nil {
		if err := p.throttle.Throttle(ctx); err != nil {
			return unavailable, false, err
		}
	}

	wait := page.WaitNewPage(ctx, p.timing.NewSurfaceTimeout)
	if err := value.Click(ctx, true); err != nil {
		return unavailable, false, fmt.Errorf("click value link: %w", err)
	}

	detailPage, separate, err := p.surface(ctx, sess, wait, link, res)
	if err != nil {
		return unavailable, true, err
	}

	outcome = p.engine.Extract(ctx, detailPage, subject, p.extractor.MaxAttempts)

	if separate && !detailPage.Closed() {
		if err := detailPage.Close(); err != nil {
			slog.Debug("closing detail tab failed", "error", err)
		}
	}
	navigated, err = p.restore(ctx, page, res)
	if err != nil {
		return outcome, navigated, err
	}
	if err := engine.Sleep(ctx, p.timing.RowSettle); err != nil {
		return outcome, navigated, err
	}
	return outcome, navigated, nil
}

// surface returns the page showing the detail view: the tab the click
// opened, else the results tab if the click navigated it, else a new tab at
// the link's absolute address, else the results tab as is.
func (p *Processor) surface(ctx context.Context, sess *session.Session, wait func() (browser.Page, error), link string, res Results) (browser.Page, bool, error) {
	if opened, err := wait(); err == nil {
		slog.Info("detail opened in new tab")
		return opened, true, nil
	} else if gone(sess.Page, err) {
		return nil, false, err
	}

	if res.Location != "" && sess.Page.URL() != res.Location {
		slog.Info("detail loaded in same tab", "url", sess.Page.URL())
		return sess.Page, false, nil
	}
	target := absolute(link, res.Location)
	if target == "" {
		slog.Info("detail link is not navigable, using results tab", "link", link)
		return sess.Page, false, nil
	}

	slog.Warn("new tab did not open automatically, opening manually", "url", target)
	np, err := sess.Context.NewPage(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("open detail tab: %w", err)
	}
	navCtx, cancel := context.WithTimeout(ctx, p.timing.NavigationTimeout)
	defer cancel()
	if err := np.Navigate(navCtx, target); err != nil {
		_ = np.Close()
		return nil, false, fmt.Errorf("open detail tab: %w", err)
	}
	return np, true, nil
}

// restore brings the results page back after an in-place navigation:
// history first, then a fresh load of the results address. It reports
// whether the page had left the results view.
func (p *Processor) restore(ctx context.Context, page browser.Page, res Results) (bool, error) {
	if res.Location == "" || page.URL() == res.Location {
		return false, nil
	}
	if page.Closed() {
		return true, browser.ErrPageClosed
	}

	slog.Info("returning to results", "from", page.URL())
	navCtx, cancel := context.WithTimeout(ctx, p.timing.NavigationTimeout)
	defer cancel()

	err := page.Back(navCtx)
	if err == nil && p.onResults(navCtx, page, res) {
		return true, nil
	}
	slog.Warn("back navigation did not restore results, reloading", "url", res.Location, "error", err)
	if err := page.Navigate(navCtx, res.Location); err != nil {
		return true, fmt.Errorf("restore results: %w", err)
	}
	return true, nil
}

func (p *Processor) onResults(ctx context.Context, page browser.Page, res Results) bool {
	if res.Fingerprint == 0 {
		return page.URL() == res.Location
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return false
	}
	fp := layout.FingerprintDOM(html)
	return fp != 0 && layout.Similar(fp, res.Fingerprint, layout.DefaultThreshold)
}

func (p *Processor) text(ctx context.Context, rowEl browser.Element, n int, col site.Column) string {
	v, err := first(ctx, rowEl, site.Cell(col.Child), func(el browser.Element) (string, error) {
		t, err := el.Text(ctx)
		return strings.TrimSpace(t), err
	})
	if err != nil {
		slog.Warn("field unavailable", "row", n, "field", col.Name,
			"error", models.NewScrapeError(models.ErrCodeFieldExtraction, col.Name, err))
		return models.Unavailable
	}
	return v
}

func (p *Processor) href(ctx context.Context, rowEl browser.Element) string {
	v, err := first(ctx, rowEl, site.DetailLink, func(el browser.Element) (string, error) {
		href, ok, err := el.Attr(ctx, "href")
		if err == nil && (!ok || strings.TrimSpace(href) == "") {
			err = errors.New("no href")
		}
		return strings.TrimSpace(href), err
	})
	if err != nil {
		return models.Unavailable
	}
	return v
}

func (p *Processor) snapshot(ctx context.Context, page browser.Page, subject, reason string) {
	if p.snapshots != nil {
		p.snapshots.Capture(ctx, page, subject, reason)
	}
}

func first(ctx context.Context, parent browser.Element, loc browser.Locator, read func(browser.Element) (string, error)) (string, error) {
	els, err := parent.Find(ctx, loc)
	if err != nil {
		return "", err
	}
	if len(els) == 0 {
		return "", fmt.Errorf("%s: %w", loc, browser.ErrNotFound)
	}
	return read(els[0])
}

// absolute resolves link against base. Only http(s) results are returned.
func absolute(link, base string) string {
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if !ref.IsAbs() {
		b, err := url.Parse(base)
		if err != nil || !b.IsAbs() {
			return ""
		}
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func gone(page browser.Page, err error) bool {
	return errors.Is(err, browser.ErrPageClosed) || models.IsSessionClosed(err) || (page != nil && page.Closed())
}

func closed(n int, err error) error {
	return models.NewScrapeError(models.ErrCodeSessionClosed, fmt.Sprintf("session closed on row %d", n), err)
}

func percent(index, total int) int {
	if total <= 0 {
		return 0
	}
	return index * 100 / total
}
