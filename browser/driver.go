// Package browser defines the page-automation surface the pipeline drives and
// its go-rod implementation.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrPageClosed is wrapped by every driver error caused by a page, context or
// process that no longer exists.
var ErrPageClosed = errors.New("browser: target has been closed")

// ErrNotFound is returned when a wait for a locator times out.
var ErrNotFound = errors.New("browser: element not found")

// LaunchOptions configures a browser process.
type LaunchOptions struct {
	Headless  bool
	NoSandbox bool
	Bin       string
	Proxy     string

	// Flags are extra command-line switches without the leading dashes.
	Flags []string
}

// Identity is applied to every page of a browsing context.
type Identity struct {
	UserAgent      string
	AcceptLanguage string
	Locale         string
	Width          int
	Height         int
	Headers        map[string]string

	// Blocked lists resource types never loaded ("Image", "Font", ...).
	Blocked []string
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Process, error)
}

// Process is a running browser.
type Process interface {
	// NewContext creates an isolated browsing context.
	NewContext(ctx context.Context, id Identity) (Context, error)
	// Alive reports whether the process still answers.
	Alive() bool
	Close() error
}

// Context is an isolated browsing context (its own cookies and storage).
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one browsing surface.
type Page interface {
	// Navigate loads url and waits for DOMContentLoaded.
	Navigate(ctx context.Context, url string) error
	// WaitLoad waits for the load event, at most timeout.
	WaitLoad(ctx context.Context, timeout time.Duration) error
	Back(ctx context.Context) error
	URL() string
	HTML(ctx context.Context) (string, error)

	// WaitFor waits until at least one element matches loc, at most timeout.
	// It returns an error wrapping ErrNotFound on timeout.
	WaitFor(ctx context.Context, loc Locator, timeout time.Duration) error
	// Elements returns the current matches of loc without waiting.
	Elements(ctx context.Context, loc Locator) ([]Element, error)

	Fill(ctx context.Context, loc Locator, value string) error
	// SelectOption selects the option with the visible label.
	SelectOption(ctx context.Context, loc Locator, label string) error
	Click(ctx context.Context, loc Locator, force bool) error

	// WaitNewPage must be called before the action that opens the page. The
	// returned function blocks until a page opened from this page's context
	// appears, at most timeout.
	WaitNewPage(ctx context.Context, timeout time.Duration) func() (Page, error)

	// Screenshot writes a full-page PNG to path.
	Screenshot(ctx context.Context, path string) error

	Closed() bool
	Close() error
}

// Element is a node of a page.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attr returns the attribute value and whether it is present.
	Attr(ctx context.Context, name string) (string, bool, error)
	SetAttr(ctx context.Context, name, value string) error
	ScrollIntoView(ctx context.Context) error
	// Click dispatches a click. force skips actionability checks and
	// calls the element's click() directly.
	Click(ctx context.Context, force bool) error
	// Find returns descendants matching loc without waiting.
	Find(ctx context.Context, loc Locator) ([]Element, error)
}
