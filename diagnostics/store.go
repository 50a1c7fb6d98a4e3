// Package diagnostics saves full-page snapshots of views the pipeline could
// not make sense of. Every write is best-effort: failures are logged and
// swallowed.
package diagnostics

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/use-agent/recoveryfinder/browser"
)

// timestampLayout is an ISO-8601 UTC timestamp with ':' replaced. timestamp
// replaces the '.' before the milliseconds.
const timestampLayout = "2006-01-02T15-04-05.000Z"

// Store writes snapshots into a directory. Each snapshot is a PNG named
// <timestamp>_<subject>_<reason>.png plus a Markdown rendering of the page
// markup next to it.
type Store struct {
	dir string
	md  *converter.Converter
	now func() time.Time
}

// NewStore returns a Store writing into dir. The directory is created on
// first capture.
func NewStore(dir string) *Store {
	return &Store{
		dir: dir,
		md:  newMarkdownConverter(),
		now: time.Now,
	}
}

func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string { return s.dir }

// Capture snapshots page and returns the PNG path, or "" when nothing was
// written. A closed page is skipped.
func (s *Store) Capture(ctx context.Context, page browser.Page, subject, reason string) string {
	if page == nil || page.Closed() {
		slog.Warn("skipping snapshot, page is already closed", "subject", subject)
		return ""
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		slog.Warn("snapshot directory unavailable", "dir", s.dir, "error", err)
		return ""
	}

	name := timestamp(s.now()) + "_" + Label(subject) + "_" + Label(reason)
	path := filepath.Join(s.dir, name+".png")
	if err := page.Screenshot(ctx, path); err != nil {
		slog.Warn("failed to take snapshot", "subject", subject, "error", err)
		return ""
	}
	slog.Info("snapshot saved", "path", path)

	s.dumpMarkdown(ctx, page, filepath.Join(s.dir, name+".md"))
	return path
}

// timestamp formats t for use in a file name.
func timestamp(t time.Time) string {
	return strings.Replace(t.UTC().Format(timestampLayout), ".", "-", 1)
}

func (s *Store) dumpMarkdown(ctx context.Context, page browser.Page, path string) {
	html, err := page.HTML(ctx)
	if err != nil || strings.TrimSpace(html) == "" {
		return
	}
	content, err := s.md.ConvertString(html, converter.WithDomain(page.URL()))
	if err != nil {
		slog.Debug("markdown dump failed", "error", err)
		return
	}
	header := "<!-- " + page.URL() + " -->\n\n"
	if err := os.WriteFile(path, []byte(header+content), 0o644); err != nil {
		slog.Debug("markdown dump not written", "path", path, "error", err)
	}
}

// Mentions reports which needles occur in the visible text of page. A page
// whose markup cannot be read mentions nothing.
func (s *Store) Mentions(ctx context.Context, page browser.Page, needles ...string) map[string]bool {
	found := make(map[string]bool, len(needles))
	if page == nil || page.Closed() {
		return found
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return found
	}
	text := VisibleText(html)
	for _, n := range needles {
		found[n] = strings.Contains(text, n)
	}
	return found
}

// Label keeps letters, digits, '-' and '_' so the result is usable in a file
// name. An empty result becomes "unnamed".
func Label(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
