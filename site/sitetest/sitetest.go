// Package sitetest renders the record-lookup service's pages on the
// browsertest driver.
package sitetest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/use-agent/recoveryfinder/browser/browsertest"
	"github.com/use-agent/recoveryfinder/site"
)

// Row builds a results row. link is the href of the first column ("" for
// none); cells fill columns 2 onwards, so fewer than six leaves the last
// columns missing; value is the "Value" link, nil for none.
func Row(link string, cells []string, value *browsertest.Element) *browsertest.Element {
	tds := []*browsertest.Element{browsertest.El("")}
	row := browsertest.El(strings.Join(cells, " "))
	if link != "" {
		row.WithChildren(site.DetailLink.Key(), browsertest.El("View").WithAttr("href", link))
	}
	for i, text := range cells {
		td := browsertest.El(text)
		tds = append(tds, td)
		row.WithChildren(site.Cell(i+2).Key(), td)
	}
	if value != nil {
		row.WithChildren(site.ValueLink.Key(), value)
	}
	return row.WithChildren(site.DataCell.Key(), tds...)
}

// HeaderRow is a row without td cells, as found in a table head.
func HeaderRow() *browsertest.Element {
	return browsertest.El("Name Father Address Country State City")
}

// PopupValue is a "Value" link that opens url in a new tab.
func PopupValue(url string) *browsertest.Element {
	return browsertest.El("Value").OnClick(func(ctx context.Context, p *browsertest.Page) error {
		p.Context().OpenPopup(url)
		return nil
	})
}

// InPlaceValue is a "Value" link that navigates the results page itself.
func InPlaceValue(url string) *browsertest.Element {
	return browsertest.El("Value").OnClick(func(ctx context.Context, p *browsertest.Page) error {
		return p.Navigate(ctx, url)
	})
}

// DeadValue is a "Value" link whose click does nothing.
func DeadValue() *browsertest.Element {
	return browsertest.El("Value")
}

// ResultsHTML is the markup of a results page with n data rows.
func ResultsHTML(n int) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="results"><table class="result-table"><thead><tr><th>#</th><th>Name</th></tr></thead><tbody>`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<tr><td><a href="result?id=%d">View</a></td><td>name</td><td>father</td><td>address</td><td>India</td><td>Bihar</td><td>Patna</td><td><a>Value</a></td></tr>`, i)
	}
	b.WriteString(`</tbody></table></div></body></html>`)
	return b.String()
}

// Results renders rows under every results locator, including the
// fixed-position probe when there are at least five.
func Results(rows ...*browsertest.Element) browsertest.Route {
	return func(p *browsertest.Page) {
		p.Set(site.FastRows.Key(), rows...)
		p.Set("table tr", rows...)
		if len(rows) >= 5 {
			p.Set(site.FastProbe.Key(), rows[4])
		}
		var links []*browsertest.Element
		for _, row := range rows {
			for _, a := range row.Children(site.DetailLink.Key()) {
				if strings.Contains(a.AttrValue("href"), "result") {
					links = append(links, a)
				}
			}
		}
		p.Set(site.ResultsRendered.Key(), links...)
		p.SetHTML(ResultsHTML(len(rows)))
	}
}

// Detail renders a detail view showing price, e.g. "Approx ₹18,625".
func Detail(price string) browsertest.Route {
	return func(p *browsertest.Page) {
		p.Set("b.pulse", browsertest.El(price))
		p.SetHTML(`<html><body><div class="card"><p><b class="pulse">` + price + `</b></p></div></body></html>`)
	}
}

// Search renders the search form. As on the live site the form is laid out
// in a four-row table, so the generic row locators match it. Clicking search
// runs onSearch.
func Search(onSearch browsertest.ClickFunc) browsertest.Route {
	return func(p *browsertest.Page) {
		button := browsertest.El("Search").OnClick(onSearch)
		formRows := []*browsertest.Element{
			browsertest.El("First Name").WithChildren(site.DataCell.Key(), browsertest.El("First Name"), browsertest.El("")),
			browsertest.El("Last Name").WithChildren(site.DataCell.Key(), browsertest.El("Last Name"), browsertest.El("")),
			browsertest.El("State Bihar").WithChildren(site.DataCell.Key(), browsertest.El("State"), browsertest.El("Bihar")),
			browsertest.El("Search").WithChildren(site.DataCell.Key(), button),
		}
		p.Set(site.FastRows.Key(), formRows...)
		p.Set("table tr", formRows...)
		p.Set(site.FirstName.Key(), browsertest.El(""))
		p.Set(site.LastName.Key(), browsertest.El(""))
		p.Set(site.State.Key(), browsertest.El("Bihar"))
		p.Set(site.SearchButton.Key(), button)
		p.SetHTML(`<html><body><form><table><tbody>` +
			`<tr><td>First Name</td><td><input id="first_name"></td></tr>` +
			`<tr><td>Last Name</td><td><input id="last_name"></td></tr>` +
			`<tr><td>State</td><td><select name="state" class="select_field"><option>Bihar</option></select></td></tr>` +
			`<tr><td><center><input type="submit" value="Search"></center></td></tr>` +
			`</tbody></table></form></body></html>`)
	}
}

// OpensResults is a search click that shows the results in a new tab.
func OpensResults(url string) browsertest.ClickFunc {
	return func(ctx context.Context, p *browsertest.Page) error {
		p.Context().OpenPopup(url)
		return nil
	}
}

// OpensResultsAfter is a search click whose results tab appears only after
// delay, as when the browser is slow to create the target.
func OpensResultsAfter(url string, delay time.Duration) browsertest.ClickFunc {
	return func(ctx context.Context, p *browsertest.Page) error {
		p.Context().OpenPopupAfter(url, delay)
		return nil
	}
}

// ShowsResults is a search click that loads the results in place.
func ShowsResults(url string) browsertest.ClickFunc {
	return func(ctx context.Context, p *browsertest.Page) error {
		return p.Navigate(ctx, url)
	}
}
