// Package site holds the locators for the record-lookup service.
package site

import (
	"errors"
	"fmt"

	"github.com/use-agent/recoveryfinder/browser"
)

// Search form.
var (
	FirstName = browser.XPath("first name", `//input[@id="first_name"]`)
	LastName  = browser.XPath("last name", `//input[@id="last_name"]`)
	State     = browser.XPath("state", `//select[@name="state" and @class="select_field"]`)

	SearchButton = browser.XPath("search button",
		`//*[@id="post-9"]/div/div/section[1]/div/div/div/div[6]/div/div/form/table/tbody/tr[4]/td/center/input`)
)

// Results table.
var (
	// ResultsRendered signals that results rendered in place after a search.
	// The search form is itself laid out in a table, so only a row carrying
	// a detail link counts.
	ResultsRendered = browser.CSS(`table tbody tr td:nth-child(1) a[href*="result"]`)

	// FastProbe is the fixed-position probe: a fifth row means the usual
	// results layout is there and FastRows can be used as is.
	FastProbe = browser.CSS("table tbody tr:nth-child(5)")
	FastRows  = browser.CSS("table tbody tr")

	// RowCandidates are tried in order when the fast probe misses.
	RowCandidates = []browser.Locator{
		browser.CSS("table tbody tr"),
		browser.CSS("table.result-table tbody tr"),
		browser.CSS("table tr"),
		browser.CSS(".result-table tr"),
	}

	// DataCell filters out header and spacer rows.
	DataCell = browser.CSS("td")

	DetailLink = browser.CSS("td:nth-child(1) a")
	ValueLink  = browser.HasText("a", "Value")
)

// Detail view.
var (
	// PriceLocators are tried in order on the live page; the first element
	// yielding a number wins.
	PriceLocators = []browser.Locator{
		browser.CSS("b.pulse"),
		browser.CSS(".pulse"),
		browser.HasText("b", "₹"),
		browser.HasText("b", "Approx"),
		browser.HasText("*", "₹"),
		browser.HasText("span", "₹"),
		browser.HasText("div", "Approx"),
		browser.HasText("td", "₹"),
		browser.HasText("p", "₹"),
	}

	// PriceMarkup is the same idea evaluated against a static copy of the
	// page, for prices rendered into markup the live queries missed.
	PriceMarkup = []string{
		`b.pulse`,
		`.pulse`,
		`b:contains("₹")`,
		`*:contains("Approx")`,
	}
)

// Column is one text field of a results row.
type Column struct {
	Name  string
	Child int // 1-based td position
}

// Columns lists the text fields in record order.
var Columns = []Column{
	{Name: "Full Name", Child: 2},
	{Name: "Father Name", Child: 3},
	{Name: "Address", Child: 4},
	{Name: "Country", Child: 5},
	{Name: "State", Child: 6},
	{Name: "City", Child: 7},
}

// Cell returns the locator of the td at the 1-based position.
func Cell(child int) browser.Locator {
	return browser.CSS(fmt.Sprintf("td:nth-child(%d)", child))
}

// Validate checks every locator so a broken selector fails at startup.
func Validate() error {
	all := []browser.Locator{
		FirstName, LastName, State, SearchButton,
		ResultsRendered, FastProbe, FastRows, DataCell, DetailLink, ValueLink,
	}
	all = append(all, RowCandidates...)
	all = append(all, PriceLocators...)
	for _, c := range Columns {
		all = append(all, Cell(c.Child))
	}

	var errs []error
	for _, loc := range all {
		if err := loc.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, sel := range PriceMarkup {
		if err := browser.CSS(sel).Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
