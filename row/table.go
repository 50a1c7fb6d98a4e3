package row

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/recoveryfinder/browser"
	"github.com/use-agent/recoveryfinder/models"
	"github.com/use-agent/recoveryfinder/site"
)

// Table holds the data rows of one results view. The rows are looked up once
// and reused until the view is replaced: a different page (after a session
// recovery) or an Invalidate call (after the page navigated).
type Table struct {
	Rows browser.Locator

	page browser.Page
	rows []browser.Element
}

// NewTable returns a Table over the rows matched by rows.
func NewTable(rows browser.Locator) *Table {
	return &Table{Rows: rows}
}

// Len resolves the table on page and returns its number of data rows.
func (t *Table) Len(ctx context.Context, page browser.Page) (int, error) {
	if err := t.refresh(ctx, page); err != nil {
		return 0, err
	}
	return len(t.rows), nil
}

// Row returns the data row at index on page.
func (t *Table) Row(ctx context.Context, page browser.Page, index int) (browser.Element, error) {
	if page.Closed() {
		return nil, browser.ErrPageClosed
	}
	if t.page != page || t.rows == nil {
		if err := t.refresh(ctx, page); err != nil {
			return nil, err
		}
	}
	if index >= len(t.rows) {
		return nil, models.NewScrapeError(models.ErrCodeRowFatal,
			fmt.Sprintf("row %d of %d no longer present", index+1, len(t.rows)), nil)
	}
	return t.rows[index], nil
}

// Invalidate drops the cached rows.
func (t *Table) Invalidate() {
	t.page = nil
	t.rows = nil
}

func (t *Table) refresh(ctx context.Context, page browser.Page) error {
	rows, err := DataRows(ctx, page, t.Rows)
	if err != nil {
		t.Invalidate()
		return err
	}
	t.page = page
	t.rows = rows
	return nil
}

// DataRows returns the elements matched by rows that contain at least one
// td, which drops header and spacer rows.
func DataRows(ctx context.Context, page browser.Page, rows browser.Locator) ([]browser.Element, error) {
	els, err := page.Elements(ctx, rows)
	if err != nil {
		return nil, err
	}
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		cells, err := el.Find(ctx, site.DataCell)
		if err != nil {
			if errors.Is(err, browser.ErrPageClosed) {
				return nil, err
			}
			continue
		}
		if len(cells) > 0 {
			out = append(out, el)
		}
	}
	return out, nil
}
