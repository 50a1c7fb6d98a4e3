package layout

import (
	"strings"

	"golang.org/x/net/html"
)

// FingerprintDOM fingerprints the distinct tag trigrams of htmlStr, ignoring
// text and attributes. Repeats count once, so a results table matches itself
// whatever its row count.
func FingerprintDOM(htmlStr string) uint64 {
	tags := tagSequence(htmlStr)
	if len(tags) == 0 {
		return 0
	}
	shingles := distinct(shingle(tags, 3))
	if len(shingles) == 0 {
		return Fingerprint(strings.Join(tags, " "))
	}
	return Fingerprint(strings.Join(shingles, " "))
}

func tagSequence(htmlStr string) []string {
	z := html.NewTokenizer(strings.NewReader(htmlStr))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

func shingle(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}

func distinct(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
