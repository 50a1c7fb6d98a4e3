package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/recoveryfinder/browser"
	"github.com/use-agent/recoveryfinder/browser/browsertest"
)

const detailHTML = `<html><head><style>.pulse{color:red}</style>
<script>var price = "₹1";</script></head>
<body><h1>Ravi Kumar</h1><table><tr><td>Approx</td><td>₹ 18,625</td></tr></table></body></html>`

func openPage(t *testing.T, url, html string) *browsertest.Page {
	t.Helper()
	l := browsertest.NewLauncher()
	l.Handle(url, func(p *browsertest.Page) { p.SetHTML(html) })
	proc, err := l.Launch(context.Background(), browser.LaunchOptions{})
	require.NoError(t, err)
	bctx, err := proc.NewContext(context.Background(), browser.Identity{})
	require.NoError(t, err)
	page, err := bctx.NewPage(context.Background())
	require.NoError(t, err)
	require.NoError(t, page.Navigate(context.Background(), url))
	return page.(*browsertest.Page)
}

func TestCaptureWritesSnapshotAndMarkdown(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screenshots")
	s := NewStore(dir)
	s.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 123e6, time.UTC) }
	page := openPage(t, "https://search.example/detail", detailHTML)

	path := s.Capture(context.Background(), page, "price-not-found-RaviKumar", "value")
	assert.Equal(t, filepath.Join(dir, "2024-05-06T07-08-09-123Z_price-not-found-RaviKumar_value.png"), path)
	assert.FileExists(t, path)
	assert.Equal(t, []string{path}, page.Screenshots())

	md, err := os.ReadFile(strings.TrimSuffix(path, ".png") + ".md")
	require.NoError(t, err)
	assert.Contains(t, string(md), "Ravi Kumar")
	assert.Contains(t, string(md), "18,625")
	assert.NotContains(t, string(md), "var price")
}

func TestCaptureNamesKeepMilliseconds(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	page := openPage(t, "https://search.example/detail", detailHTML)

	base := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("IST", 5*3600+1800))
	var paths []string
	for _, ms := range []int{456, 789} {
		s.now = func() time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }
		paths = append(paths, s.Capture(context.Background(), page, "row-3-click-error", "error"))
	}
	assert.Equal(t, filepath.Join(dir, "2024-05-06T01-38-09-456Z_row-3-click-error_error.png"), paths[0])
	assert.Equal(t, filepath.Join(dir, "2024-05-06T01-38-09-789Z_row-3-click-error_error.png"), paths[1])
	assert.FileExists(t, paths[0])
	assert.FileExists(t, paths[1])
}

func TestTimestamp(t *testing.T) {
	assert.Equal(t, "2024-05-06T07-08-09-000Z", timestamp(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)))
	assert.Equal(t, "2024-05-06T07-08-09-007Z", timestamp(time.Date(2024, 5, 6, 7, 8, 9, 7e6, time.UTC)))
}

func TestCaptureSkipsClosedPage(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	page := openPage(t, "https://search.example/detail", detailHTML)
	require.NoError(t, page.Close())

	assert.Empty(t, s.Capture(context.Background(), page, "x", "error"))
	assert.Empty(t, s.Capture(context.Background(), nil, "x", "error"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCaptureSwallowsWriteFailure(t *testing.T) {
	// a regular file where the directory should be
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	s := NewStore(filepath.Join(blocker, "screenshots"))
	page := openPage(t, "https://search.example/detail", detailHTML)

	assert.Empty(t, s.Capture(context.Background(), page, "x", "error"))
}

func TestMentions(t *testing.T) {
	s := NewStore(t.TempDir())
	page := openPage(t, "https://search.example/detail", detailHTML)

	got := s.Mentions(context.Background(), page, "₹", "Approx", "pulse", "var price")
	assert.Equal(t, map[string]bool{"₹": true, "Approx": true, "pulse": false, "var price": false}, got)

	require.NoError(t, page.Close())
	assert.Empty(t, s.Mentions(context.Background(), page, "₹"))
}

func TestVisibleText(t *testing.T) {
	assert.Equal(t, "Ravi Kumar Approx ₹ 18,625", VisibleText(detailHTML))
	assert.Empty(t, VisibleText(""))
	assert.Equal(t, "a b", VisibleText("<p>a</p><noscript>x</noscript><p>  b  </p>"))
}

func TestLabel(t *testing.T) {
	tests := map[string]string{
		"row-5-click-error": "row-5-click-error",
		"critical error":    "criticalerror",
		"../../etc":         "etc",
		"₹":                 "unnamed",
		"":                  "unnamed",
	}
	for in, want := range tests {
		assert.Equal(t, want, Label(in), in)
	}
}
