package diagnostics

import (
	"strings"

	"golang.org/x/net/html"
)

// VisibleText returns the text a reader would see in htmlStr: text nodes
// outside script, style, noscript and template, whitespace-collapsed.
func VisibleText(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	var (
		parts  []string
		hidden int
	)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(parts, " ")
		case html.StartTagToken:
			if isHidden(tokenizer) {
				hidden++
			}
		case html.EndTagToken:
			if isHidden(tokenizer) && hidden > 0 {
				hidden--
			}
		case html.TextToken:
			if hidden > 0 {
				continue
			}
			if t := strings.Join(strings.Fields(string(tokenizer.Text())), " "); t != "" {
				parts = append(parts, t)
			}
		}
	}
}

func isHidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}
