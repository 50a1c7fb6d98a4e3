package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/use-agent/recoveryfinder/browser"
)

// ClickFunc runs when an element is clicked. p is the page owning the element.
type ClickFunc func(ctx context.Context, p *Page) error

// Element implements browser.Element.
type Element struct {
	Content string

	mu       sync.Mutex
	page     *Page
	attrs    map[string]string
	children map[string][]*Element
	onClick  ClickFunc
	textErr  error
	clickErr error
	clicks   int
	scrolled int
}

var _ browser.Element = (*Element)(nil)

// El returns an element with the given visible text.
func El(text string) *Element {
	return &Element{Content: text, attrs: make(map[string]string), children: make(map[string][]*Element)}
}

// WithAttr sets an attribute.
func (e *Element) WithAttr(name, value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
	return e
}

// WithChildren sets the descendants matched by the locator key.
func (e *Element) WithChildren(key string, els ...*Element) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.children[key] = els
	return e
}

// Children returns the descendants set for the locator key.
func (e *Element) Children(key string) []*Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Element(nil), e.children[key]...)
}

// OnClick sets the click behaviour.
func (e *Element) OnClick(fn ClickFunc) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClick = fn
	return e
}

// FailText makes Text return err.
func (e *Element) FailText(err error) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.textErr = err
	return e
}

// FailClick makes Click return err.
func (e *Element) FailClick(err error) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clickErr = err
	return e
}

// Clicks returns how many times the element was clicked.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Scrolled returns how many times the element was scrolled into view.
func (e *Element) Scrolled() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrolled
}

// AttrValue returns the current value of an attribute.
func (e *Element) AttrValue(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attrs[name]
}

func (e *Element) adopt(p *Page) {
	e.mu.Lock()
	e.page = p
	children := e.children
	e.mu.Unlock()
	for _, els := range children {
		for _, c := range els {
			c.adopt(p)
		}
	}
}

func (e *Element) live() error {
	e.mu.Lock()
	p := e.page
	e.mu.Unlock()
	if p != nil && p.Closed() {
		return fmt.Errorf("element: %w", browser.ErrPageClosed)
	}
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := e.live(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.textErr != nil {
		return "", e.textErr
	}
	return e.Content, nil
}

func (e *Element) Attr(ctx context.Context, name string) (string, bool, error) {
	if err := e.live(); err != nil {
		return "", false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *Element) SetAttr(ctx context.Context, name, value string) error {
	if err := e.live(); err != nil {
		return err
	}
	e.WithAttr(name, value)
	return nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	if err := e.live(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scrolled++
	return nil
}

func (e *Element) Click(ctx context.Context, force bool) error {
	if err := e.live(); err != nil {
		return err
	}
	e.mu.Lock()
	e.clicks++
	fn, err, p := e.onClick, e.clickErr, e.page
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if fn != nil {
		return fn(ctx, p)
	}
	return nil
}

func (e *Element) Find(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	els := e.children[loc.Key()]
	e.mu.Unlock()
	return toElements(filter(els, loc)), nil
}

func filter(els []*Element, loc browser.Locator) []*Element {
	if loc.Text == "" {
		return els
	}
	out := make([]*Element, 0, len(els))
	for _, el := range els {
		el.mu.Lock()
		text := el.Content
		el.mu.Unlock()
		if loc.MatchText(text) {
			out = append(out, el)
		}
	}
	return out
}

func toElements(els []*Element) []browser.Element {
	out := make([]browser.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out
}
