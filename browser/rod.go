package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/recoveryfinder/models"
	"github.com/ysmood/gson"
)

// probeTimeout bounds the liveness and URL lookups, which must never hang.
const probeTimeout = 3 * time.Second

// RodLauncher launches Chromium through go-rod.
type RodLauncher struct{}

// NewRodLauncher returns the production launcher.
func NewRodLauncher() *RodLauncher {
	return &RodLauncher{}
}

// Launch starts a browser process and connects to it.
func (RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Process, error) {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)

	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}

	// Hide the automation banner and navigator.webdriver.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("no-first-run"))
	for _, f := range opts.Flags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(f, "-"), "=")
		if hasValue {
			l.Set(flags.Flag(name), value)
		} else {
			l.Set(flags.Flag(name))
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", opts.Headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	return &rodProcess{launcher: l, browser: b}, nil
}

type rodProcess struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	closed   atomic.Bool
}

func (p *rodProcess) NewContext(ctx context.Context, id Identity) (Context, error) {
	inc, err := p.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create browsing context", wrapClosed(err, !p.Alive()))
	}
	return &rodContext{proc: p, browser: inc.Context(context.Background()), identity: id}, nil
}

func (p *rodProcess) Alive() bool {
	if p.closed.Load() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	_, err := p.browser.Context(ctx).Version()
	return err == nil
}

func (p *rodProcess) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.browser.Close()
	p.launcher.Kill()
	p.launcher.Cleanup()
	return err
}

type rodContext struct {
	proc     *rodProcess
	browser  *rod.Browser
	identity Identity

	mu    sync.Mutex
	pages []*rodPage
}

func (c *rodContext) NewPage(ctx context.Context) (Page, error) {
	pg, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", wrapClosed(err, !c.proc.Alive()))
	}
	p := c.adopt(pg)
	c.prepare(ctx, p, true)
	return p, nil
}

func (c *rodContext) Close() error {
	c.mu.Lock()
	pages := c.pages
	c.pages = nil
	c.mu.Unlock()
	for _, p := range pages {
		p.stopRouter()
	}
	return c.browser.Close()
}

func (c *rodContext) adopt(pg *rod.Page) *rodPage {
	p := &rodPage{page: pg.Context(context.Background()), owner: c}
	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()
	return p
}

// prepare applies the context identity to a page. Every step is best-effort:
// a page without stealth or headers is still usable.
func (c *rodContext) prepare(ctx context.Context, p *rodPage, fresh bool) {
	id := c.identity
	pg := p.page.Context(ctx)

	if fresh {
		if _, err := pg.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if id.UserAgent != "" {
		if err := pg.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      id.UserAgent,
			AcceptLanguage: id.AcceptLanguage,
		}); err != nil {
			slog.Warn("user agent override failed", "error", err)
		}
	}
	if id.Width > 0 && id.Height > 0 {
		if err := pg.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             id.Width,
			Height:            id.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			slog.Warn("viewport override failed", "error", err)
		}
	}
	if id.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: id.Locale}).Call(pg); err != nil {
			slog.Debug("locale override failed", "error", err)
		}
	}

	headers := make(map[string]string, len(id.Headers)+1)
	if id.AcceptLanguage != "" {
		headers["Accept-Language"] = id.AcceptLanguage
	}
	for k, v := range id.Headers {
		headers[k] = v
	}
	if len(headers) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}).Call(pg); err != nil {
			slog.Warn("extra headers failed", "error", err)
		}
	}

	if fresh {
		p.router = setupHijack(p.page, id.Blocked)
	}
}

type rodPage struct {
	page   *rod.Page
	owner  *rodContext
	router *rod.HijackRouter
	closed atomic.Bool
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		return p.categorize(err, "navigation to "+url+" failed")
	}
	wait()
	if err := ctx.Err(); err != nil {
		return p.categorize(err, "waiting for DOMContentLoaded on "+url)
	}
	return nil
}

func (p *rodPage) WaitLoad(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.page.Context(tctx).WaitLoad(); err != nil {
		return p.categorize(err, "waiting for load")
	}
	return nil
}

func (p *rodPage) Back(ctx context.Context) error {
	pg := p.page.Context(ctx)
	if err := pg.NavigateBack(); err != nil {
		return p.categorize(err, "back navigation failed")
	}
	if err := pg.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge after back navigation", "error", err)
	}
	return nil
}

func (p *rodPage) URL() string {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	return html, p.wrap(err)
}

func (p *rodPage) WaitFor(ctx context.Context, loc Locator, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := p.element(tctx, loc); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s after %s: %w", loc, timeout, ErrNotFound)
		}
		return p.wrap(err)
	}
	return nil
}

func (p *rodPage) Elements(ctx context.Context, loc Locator) ([]Element, error) {
	pg := p.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if loc.XPath != "" {
		els, err = pg.ElementsX(loc.XPath)
	} else {
		els, err = pg.Elements(loc.CSS)
	}
	if err != nil {
		return nil, p.wrap(err)
	}
	return p.filter(ctx, els, loc), nil
}

func (p *rodPage) Fill(ctx context.Context, loc Locator, value string) error {
	el, err := p.element(ctx, loc)
	if err != nil {
		return p.wrap(err)
	}
	_ = el.SelectAllText()
	return p.wrap(el.Input(value))
}

func (p *rodPage) SelectOption(ctx context.Context, loc Locator, label string) error {
	el, err := p.element(ctx, loc)
	if err != nil {
		return p.wrap(err)
	}
	return p.wrap(el.Select([]string{label}, true, rod.SelectorTypeText))
}

func (p *rodPage) Click(ctx context.Context, loc Locator, force bool) error {
	el, err := p.element(ctx, loc)
	if err != nil {
		return p.wrap(err)
	}
	return p.wrap(clickElement(el, force))
}

func (p *rodPage) WaitNewPage(ctx context.Context, timeout time.Duration) func() (Page, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	wait := p.page.Context(tctx).WaitOpen()
	return func() (Page, error) {
		defer cancel()
		pg, err := wait()
		if tctx.Err() != nil {
			return nil, fmt.Errorf("no page opened within %s: %w", timeout, ErrNotFound)
		}
		if err != nil {
			return nil, p.wrap(err)
		}
		np := p.owner.adopt(pg)
		p.owner.prepare(ctx, np, false)
		return np, nil
	}
}

func (p *rodPage) Screenshot(ctx context.Context, path string) error {
	img, err := p.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return p.wrap(err)
	}
	return os.WriteFile(path, img, 0o644)
}

func (p *rodPage) Closed() bool {
	if p.closed.Load() {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if _, err := p.page.Context(ctx).Info(); err != nil {
		return true
	}
	return false
}

func (p *rodPage) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.stopRouter()
	return p.page.Close()
}

func (p *rodPage) stopRouter() {
	if p.router != nil {
		_ = p.router.Stop()
		p.router = nil
	}
}

// element waits for the first match of loc until ctx is done.
func (p *rodPage) element(ctx context.Context, loc Locator) (*rod.Element, error) {
	pg := p.page.Context(ctx)
	switch {
	case loc.XPath != "":
		return pg.ElementX(loc.XPath)
	case loc.Text != "":
		return pg.ElementR(loc.CSS, loc.Text)
	default:
		return pg.Element(loc.CSS)
	}
}

func (p *rodPage) filter(ctx context.Context, els rod.Elements, loc Locator) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		if loc.Text != "" {
			text, err := el.Context(ctx).Text()
			if err != nil || !loc.MatchText(text) {
				continue
			}
		}
		out = append(out, &rodElement{el: el, page: p})
	}
	return out
}

func (p *rodPage) wrap(err error) error {
	if err == nil {
		return nil
	}
	return wrapClosed(err, p.closed.Load() || looksClosed(err))
}

// categorize maps a navigation error to a coded error.
func (p *rodPage) categorize(err error, msg string) *models.ScrapeError {
	switch {
	case p.closed.Load() || looksClosed(err):
		return models.NewScrapeError(models.ErrCodeSessionClosed, msg, wrapClosed(err, true))
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}

type rodElement struct {
	el   *rod.Element
	page *rodPage
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	return strings.TrimSpace(text), e.page.wrap(err)
}

func (e *rodElement) Attr(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, e.page.wrap(err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) SetAttr(ctx context.Context, name, value string) error {
	_, err := e.el.Context(ctx).Eval(`(n, v) => this.setAttribute(n, v)`, name, value)
	return e.page.wrap(err)
}

func (e *rodElement) ScrollIntoView(ctx context.Context) error {
	return e.page.wrap(e.el.Context(ctx).ScrollIntoView())
}

func (e *rodElement) Click(ctx context.Context, force bool) error {
	return e.page.wrap(clickElement(e.el.Context(ctx), force))
}

func (e *rodElement) Find(ctx context.Context, loc Locator) ([]Element, error) {
	el := e.el.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if loc.XPath != "" {
		els, err = el.ElementsX(loc.XPath)
	} else {
		els, err = el.Elements(loc.CSS)
	}
	if err != nil {
		return nil, e.page.wrap(err)
	}
	return e.page.filter(ctx, els, loc), nil
}

// clickElement clicks through the input pipeline, or calls click() directly
// when force is set so overlays and visibility checks cannot block it.
func clickElement(el *rod.Element, force bool) error {
	if force {
		_, err := el.Eval(`() => this.click()`)
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

var closedMarkers = []string{
	"has been closed",
	"target closed",
	"no target with given id",
	"session with given id not found",
	"use of closed network connection",
}

func looksClosed(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range closedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func wrapClosed(err error, closed bool) error {
	if err == nil || !closed || errors.Is(err, ErrPageClosed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPageClosed, err)
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
