package browser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
)

// Locator is one strategy for finding an element: a CSS selector or an
// XPath expression, optionally narrowed to elements whose text matches Text.
type Locator struct {
	// Name is used in logs only.
	Name string

	CSS   string
	XPath string

	// Text is a regular expression matched against the element's visible
	// text. Only valid together with CSS.
	Text string
}

// CSS returns a locator for a plain CSS selector.
func CSS(selector string) Locator {
	return Locator{Name: selector, CSS: selector}
}

// XPath returns a locator for an XPath expression.
func XPath(name, expr string) Locator {
	return Locator{Name: name, XPath: expr}
}

// HasText returns a locator matching elements selected by css whose text
// contains the literal text.
func HasText(css, text string) Locator {
	return Locator{
		Name: fmt.Sprintf("%s:has-text(%q)", css, text),
		CSS:  css,
		Text: regexp.QuoteMeta(text),
	}
}

// Key identifies the structural part of the locator (without the text filter).
func (l Locator) Key() string {
	if l.XPath != "" {
		return "xpath=" + l.XPath
	}
	return l.CSS
}

func (l Locator) String() string {
	if l.Name != "" {
		return l.Name
	}
	if l.Text != "" {
		return fmt.Sprintf("%s /%s/", l.Key(), l.Text)
	}
	return l.Key()
}

// Validate checks that the locator is well formed. CSS selectors are compiled
// with cascadia so a typo fails at startup instead of timing out in the browser.
func (l Locator) Validate() error {
	switch {
	case l.CSS == "" && l.XPath == "":
		return fmt.Errorf("locator %q: css or xpath required", l.Name)
	case l.CSS != "" && l.XPath != "":
		return fmt.Errorf("locator %q: css and xpath are exclusive", l.Name)
	case l.XPath != "" && l.Text != "":
		return fmt.Errorf("locator %q: text filter requires css", l.Name)
	}
	if l.CSS != "" {
		if _, err := cascadia.Compile(l.CSS); err != nil {
			return fmt.Errorf("locator %q: %w", l.Name, err)
		}
	}
	if l.XPath != "" && !strings.HasPrefix(l.XPath, "/") && !strings.HasPrefix(l.XPath, "(") {
		return fmt.Errorf("locator %q: xpath must be absolute", l.Name)
	}
	if l.Text != "" {
		if _, err := regexp.Compile(l.Text); err != nil {
			return fmt.Errorf("locator %q: %w", l.Name, err)
		}
	}
	return nil
}

// MatchText reports whether text satisfies the locator's text filter.
func (l Locator) MatchText(text string) bool {
	if l.Text == "" {
		return true
	}
	re, err := regexp.Compile(l.Text)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}
