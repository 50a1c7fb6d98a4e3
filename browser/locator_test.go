package browser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
)

func TestLocatorValidate(t *testing.T) {
	tests := []struct {
		name    string
		loc     Locator
		wantErr bool
	}{
		{"css", CSS("table tbody tr:nth-child(5)"), false},
		{"xpath", XPath("first name", `//input[@id="first_name"]`), false},
		{"has text", HasText("b", "₹"), false},
		{"empty", Locator{Name: "nothing"}, true},
		{"both", Locator{CSS: "a", XPath: "//a"}, true},
		{"bad css", CSS("table[[["), true},
		{"relative xpath", XPath("rel", "input"), true},
		{"xpath with text", Locator{XPath: "//b", Text: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLocatorKeyAndText(t *testing.T) {
	loc := HasText("span", "Approx.")
	assert.Equal(t, "span", loc.Key())
	assert.True(t, loc.MatchText("Approx. ₹100"))
	assert.False(t, loc.MatchText("Approx ₹100"))
	assert.Equal(t, `span:has-text("Approx.")`, loc.String())

	x := XPath("", "//select")
	assert.Equal(t, "xpath=//select", x.Key())
	assert.Equal(t, "xpath=//select", x.String())
	assert.True(t, x.MatchText("anything"))
}

func TestLooksClosed(t *testing.T) {
	assert.True(t, looksClosed(errors.New("page.goto: Target page, context or browser has been closed")))
	assert.True(t, looksClosed(errors.New("{-32000 No target with given id found }")))
	assert.False(t, looksClosed(errors.New("context deadline exceeded")))

	err := wrapClosed(errors.New("Target closed"), true)
	assert.ErrorIs(t, err, ErrPageClosed)
	assert.Equal(t, err, wrapClosed(err, true))
	assert.False(t, errors.Is(wrapClosed(errors.New("x"), false), ErrPageClosed))
	assert.ErrorIs(t, fmt.Errorf("row: %w", err), ErrPageClosed)
}

func TestBlockedSet(t *testing.T) {
	set := blockedSet([]string{"Font", "Script", "Media", "Unknown"})
	assert.Len(t, set, 2)
	_, font := set[proto.NetworkResourceTypeFont]
	assert.True(t, font)
	assert.Empty(t, blockedSet(nil))
}
