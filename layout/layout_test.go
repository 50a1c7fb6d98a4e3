package layout

import (
	"strings"
	"testing"
)

func resultsPage(rows int) string {
	var b strings.Builder
	b.WriteString(`<html><body><form><input><select></select></form><table><tbody>`)
	for i := 0; i < rows; i++ {
		b.WriteString(`<tr><td><a href="#">1</a></td><td>Ravi Kumar</td><td>Suresh</td><td>Patna</td><td>India</td><td>Bihar</td><td>Patna</td><td><a>Value</a></td></tr>`)
	}
	b.WriteString(`</tbody></table></body></html>`)
	return b.String()
}

const detailPage = `<html><body><div class="card"><h2>Recovery</h2><p><b class="pulse">Approx ₹18,625</b></p><ul><li>one</li><li>two</li></ul></div></body></html>`

func TestFingerprintDeterministic(t *testing.T) {
	text := "table tbody tr td a"
	if Fingerprint(text) != Fingerprint(text) {
		t.Error("same text produced different fingerprints")
	}
	if Fingerprint("") != 0 || Fingerprint(" \n\t ") != 0 {
		t.Error("blank text should fingerprint to 0")
	}
	if Fingerprint("tr") == 0 {
		t.Error("single token should produce a non-zero fingerprint")
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xF0, 0xF0, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 8, 0, 1},
		{"three bits", 0, 7, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilarThreshold(t *testing.T) {
	if !Similar(0, 7, 3) {
		t.Error("distance 3 should be similar at threshold 3")
	}
	if Similar(0, 7, 2) {
		t.Error("distance 3 should not be similar at threshold 2")
	}
}

func TestFingerprintDOMIgnoresRowCountAndText(t *testing.T) {
	few, many := FingerprintDOM(resultsPage(3)), FingerprintDOM(resultsPage(40))
	if few != many {
		t.Errorf("row count changed the fingerprint, distance %d", Distance(few, many))
	}
	renamed := strings.ReplaceAll(resultsPage(3), "Ravi Kumar", "Someone Else")
	if FingerprintDOM(renamed) != few {
		t.Error("cell text changed the fingerprint")
	}
}

func TestFingerprintDOMSeparatesViews(t *testing.T) {
	few, many := FingerprintDOM(resultsPage(5)), FingerprintDOM(resultsPage(12))
	if !Similar(few, many, DefaultThreshold) {
		t.Error("results pages with different row counts should be the same view")
	}
	detail := FingerprintDOM(detailPage)
	if Similar(few, detail, DefaultThreshold) {
		t.Errorf("results and detail views matched, distance %d", Distance(few, detail))
	}
}

func TestFingerprintDOMShortDocument(t *testing.T) {
	if FingerprintDOM("<p>hi</p>") == 0 {
		t.Error("a document with fewer tags than a shingle should still fingerprint")
	}
	if FingerprintDOM("plain text") != 0 {
		t.Error("a document without tags should fingerprint to 0")
	}
}
