// Package browsertest provides an in-memory browser driver whose pages are
// rendered by routes, for exercising the pipeline without Chromium.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/recoveryfinder/browser"
)

// Route renders a page after it navigates to the route's URL.
type Route func(p *Page)

// Launcher implements browser.Launcher.
type Launcher struct {
	mu        sync.Mutex
	routes    map[string]Route
	launches  []browser.LaunchOptions
	processes []*Process

	// LaunchErr makes every Launch call fail.
	LaunchErr error
}

var _ browser.Launcher = (*Launcher)(nil)

// NewLauncher returns a launcher with no routes.
func NewLauncher() *Launcher {
	return &Launcher{routes: make(map[string]Route)}
}

// Handle registers the route rendered for url. Query strings are ignored
// when no route matches the full URL.
func (l *Launcher) Handle(url string, r Route) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes[url] = r
}

func (l *Launcher) route(url string) (Route, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.routes[url]; ok {
		return r, true
	}
	base, _, _ := strings.Cut(url, "?")
	r, ok := l.routes[base]
	return r, ok
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, opts)
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	p := &Process{launcher: l, Options: opts}
	l.processes = append(l.processes, p)
	return p, nil
}

// Launches returns the options of every launch attempt.
func (l *Launcher) Launches() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.LaunchOptions(nil), l.launches...)
}

// Processes returns every launched process, oldest first.
func (l *Launcher) Processes() []*Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Process(nil), l.processes...)
}

// Process implements browser.Process.
type Process struct {
	launcher *Launcher
	Options  browser.LaunchOptions

	mu       sync.Mutex
	closed   bool
	contexts []*Context
}

func (p *Process) NewContext(ctx context.Context, id browser.Identity) (browser.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("new context: %w", browser.ErrPageClosed)
	}
	c := &Context{proc: p, Identity: id}
	p.contexts = append(p.contexts, c)
	return c, nil
}

func (p *Process) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Crash kills the process as if Chromium had died.
func (p *Process) Crash() {
	_ = p.Close()
}

// Contexts returns the contexts created by this process.
func (p *Process) Contexts() []*Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Context(nil), p.contexts...)
}

func (p *Process) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Context implements browser.Context.
type Context struct {
	proc     *Process
	Identity browser.Identity

	mu      sync.Mutex
	closed  bool
	pages   []*Page
	popups  []*Page
	pending int
}

func (c *Context) NewPage(ctx context.Context) (browser.Page, error) {
	if c.isClosed() {
		return nil, fmt.Errorf("new page: %w", browser.ErrPageClosed)
	}
	return c.newPage(), nil
}

func (c *Context) newPage() *Page {
	p := &Page{owner: c, url: "about:blank", elements: make(map[string][]*Element)}
	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()
	return p
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Pages returns every page opened in the context.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

// OpenPopup opens a page at url as if a link with target=_blank was followed.
func (c *Context) OpenPopup(url string) *Page {
	p := c.newPage()
	p.load(url)
	c.mu.Lock()
	c.popups = append(c.popups, p)
	c.mu.Unlock()
	return p
}

// OpenPopupAfter opens a page at url once d has passed, as a browser does
// while it creates the target. Pending popups keep WaitNewPage waiting.
func (c *Context) OpenPopupAfter(url string, d time.Duration) {
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()
	go func() {
		time.Sleep(d)
		c.OpenPopup(url)
		c.mu.Lock()
		c.pending--
		c.mu.Unlock()
	}()
}

func (c *Context) hasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

func (c *Context) popupCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.popups)
}

func (c *Context) popupAt(i int) (*Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < len(c.popups) {
		return c.popups[i], true
	}
	return nil, false
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return closed || c.proc.isClosed()
}

// Wait records one WaitFor call.
type Wait struct {
	Key     string
	Timeout time.Duration
	Found   bool
}

// Page implements browser.Page.
type Page struct {
	owner *Context

	mu       sync.Mutex
	url      string
	history  []string
	closed   bool
	html     string
	elements map[string][]*Element

	waits       []Wait
	screenshots []string
	filled      map[string]string
	selected    map[string]string
	clicked     []string
	queries     map[string]int

	// BackErr makes Back fail.
	BackErr error
	// NavigateErr makes every Navigate fail.
	NavigateErr error
}

var _ browser.Page = (*Page)(nil)

// Context returns the owning context.
func (p *Page) Context() *Context { return p.owner }

// Set replaces the matches of the locator key (CSS selector, or "xpath=" expr).
func (p *Page) Set(key string, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range els {
		el.adopt(p)
	}
	p.elements[key] = els
	return p
}

// SetHTML sets the markup returned by HTML.
func (p *Page) SetHTML(html string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
	return p
}

// load renders url without any error checks.
func (p *Page) load(url string) {
	p.mu.Lock()
	p.url = url
	p.history = append(p.history, url)
	p.html = ""
	p.elements = make(map[string][]*Element)
	p.mu.Unlock()

	if r, ok := p.owner.proc.launcher.route(url); ok {
		r(p)
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.Closed() {
		return fmt.Errorf("navigate %s: %w", url, browser.ErrPageClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.load(url)
	return nil
}

func (p *Page) WaitLoad(ctx context.Context, timeout time.Duration) error {
	if p.Closed() {
		return fmt.Errorf("wait load: %w", browser.ErrPageClosed)
	}
	return ctx.Err()
}

func (p *Page) Back(ctx context.Context) error {
	if p.Closed() {
		return fmt.Errorf("back: %w", browser.ErrPageClosed)
	}
	if p.BackErr != nil {
		return p.BackErr
	}
	p.mu.Lock()
	if len(p.history) < 2 {
		p.mu.Unlock()
		return errors.New("back: no history")
	}
	prev := p.history[len(p.history)-2]
	p.history = p.history[:len(p.history)-2]
	p.mu.Unlock()
	p.load(prev)
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if p.Closed() {
		return "", fmt.Errorf("html: %w", browser.ErrPageClosed)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

// WaitFor never sleeps: a missing element times out immediately.
func (p *Page) WaitFor(ctx context.Context, loc browser.Locator, timeout time.Duration) error {
	if p.Closed() {
		return fmt.Errorf("wait for %s: %w", loc, browser.ErrPageClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	found := len(p.match(loc)) > 0
	p.mu.Lock()
	p.waits = append(p.waits, Wait{Key: loc.Key(), Timeout: timeout, Found: found})
	p.mu.Unlock()
	if !found {
		return fmt.Errorf("%s after %s: %w", loc, timeout, browser.ErrNotFound)
	}
	return nil
}

func (p *Page) Elements(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if p.Closed() {
		return nil, fmt.Errorf("elements %s: %w", loc, browser.ErrPageClosed)
	}
	p.mu.Lock()
	if p.queries == nil {
		p.queries = make(map[string]int)
	}
	p.queries[loc.Key()]++
	p.mu.Unlock()
	return toElements(p.match(loc)), nil
}

func (p *Page) match(loc browser.Locator) []*Element {
	p.mu.Lock()
	els := p.elements[loc.Key()]
	p.mu.Unlock()
	return filter(els, loc)
}

func (p *Page) first(loc browser.Locator) (*Element, error) {
	if p.Closed() {
		return nil, fmt.Errorf("%s: %w", loc, browser.ErrPageClosed)
	}
	els := p.match(loc)
	if len(els) == 0 {
		return nil, fmt.Errorf("%s: %w", loc, browser.ErrNotFound)
	}
	return els[0], nil
}

func (p *Page) Fill(ctx context.Context, loc browser.Locator, value string) error {
	if _, err := p.first(loc); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filled == nil {
		p.filled = make(map[string]string)
	}
	p.filled[loc.Key()] = value
	return nil
}

func (p *Page) SelectOption(ctx context.Context, loc browser.Locator, label string) error {
	if _, err := p.first(loc); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		p.selected = make(map[string]string)
	}
	p.selected[loc.Key()] = label
	return nil
}

func (p *Page) Click(ctx context.Context, loc browser.Locator, force bool) error {
	el, err := p.first(loc)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.clicked = append(p.clicked, loc.Key())
	p.mu.Unlock()
	return el.Click(ctx, force)
}

// WaitNewPage only blocks while a popup opened with OpenPopupAfter is
// still pending.
func (p *Page) WaitNewPage(ctx context.Context, timeout time.Duration) func() (browser.Page, error) {
	mark := p.owner.popupCount()
	return func() (browser.Page, error) {
		deadline := time.After(timeout)
		for {
			pending := p.owner.hasPending()
			if np, ok := p.owner.popupAt(mark); ok {
				return np, nil
			}
			if !pending {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-deadline:
				return nil, fmt.Errorf("no page opened within %s: %w", timeout, browser.ErrNotFound)
			case <-time.After(5 * time.Millisecond):
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no page opened within %s: %w", timeout, browser.ErrNotFound)
	}
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	if p.Closed() {
		return fmt.Errorf("screenshot: %w", browser.ErrPageClosed)
	}
	if err := os.WriteFile(path, []byte("\x89PNG\r\n"), 0o644); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshots = append(p.screenshots, path)
	return nil
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	return closed || p.owner.isClosed()
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Waits returns the recorded WaitFor calls.
func (p *Page) Waits() []Wait {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Wait(nil), p.waits...)
}

// Screenshots returns the paths written by Screenshot.
func (p *Page) Screenshots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.screenshots...)
}

// Filled returns the value typed into the field with the locator key.
func (p *Page) Filled(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filled[key]
}

// Selected returns the option label chosen in the select with the locator key.
func (p *Page) Selected(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected[key]
}

// Clicked returns the locator keys clicked through Page.Click.
func (p *Page) Clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicked...)
}

// Queries returns how many times Elements was called with the locator key.
func (p *Page) Queries(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries[key]
}

// History returns the navigation history, oldest first.
func (p *Page) History() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.history...)
}
