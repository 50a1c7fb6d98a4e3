package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PriceFromMarkup runs selectors against a static copy of the page. For each
// selector only the innermost matches are read, so a ":contains" selector
// does not resolve to <html>.
func PriceFromMarkup(html string, selectors []string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("parse markup: %w", err)
	}

	for _, sel := range selectors {
		matches := doc.Find(sel)
		innermost := matches.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.Find(sel).Length() == 0
		})
		var (
			price string
			found bool
		)
		innermost.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			price, found = ParsePrice(s.Text())
			return !found
		})
		if found {
			return price, sel, nil
		}
	}
	return "", "", nil
}
