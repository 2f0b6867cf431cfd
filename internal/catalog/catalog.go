// Package catalog enumerates the selectable source items of a document: the
// answerable questions of a form, or the column header row of a sheet range.
package catalog

import (
	"fmt"

	"github.com/tablecast/tablecast/internal/document"
)

// Item is a selectable source item: a stable ID paired with a display title.
// Identity is by ID; the title may change between snapshots.
type Item struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Items lists the form's answerable items in document order. Presentation
// kinds (page breaks, section headers, images, videos) are excluded. An
// empty form yields an empty slice.
func Items(form *document.Form) []Item {
	items := make([]Item, 0, len(form.Items))
	for _, it := range form.Items {
		if it.Kind.Presentational() {
			continue
		}
		items = append(items, Item{ID: it.ID, Title: it.Title})
	}
	return items
}

// Resolve maps selected item IDs back to catalog items, preserving the
// selection order. IDs that no longer resolve are silently dropped.
func Resolve(form *document.Form, ids []int64) []Item {
	resolved := make([]Item, 0, len(ids))
	for _, id := range ids {
		if it := form.Item(id); it != nil && !it.Kind.Presentational() {
			resolved = append(resolved, Item{ID: it.ID, Title: it.Title})
		}
	}
	return resolved
}

// RangeSnapshot describes the sheet range chosen as a sync source. Rows
// counts data rows, excluding the header row.
type RangeSnapshot struct {
	SheetName   string   `json:"name"`
	ColumnNames []string `json:"columnNames"`
	Columns     int      `json:"columns"`
	Rows        int      `json:"rows"`
	A1          string   `json:"a1"`
}

// CaptureRange snapshots either the sheet's active selection or its full
// data range. When no range resolves the snapshot is empty (A1 "", zero
// columns and rows), never an error: the failure surfaces later as a
// "no data selected" sync result.
func CaptureRange(doc *document.SheetDocument, sheetName string, useSelection bool) RangeSnapshot {
	sheet := doc.Sheet(sheetName)
	if sheet == nil {
		return RangeSnapshot{ColumnNames: []string{}}
	}

	var rect document.Rect
	if useSelection {
		if sheet.Selection != "" {
			rect, _ = document.ParseA1(sheet.Selection)
		}
	} else {
		rect = sheet.DataRect()
	}
	if rect.IsZero() {
		return RangeSnapshot{SheetName: sheet.Name, ColumnNames: []string{}}
	}

	header := sheet.Slice(document.Rect{Row: rect.Row, Col: rect.Col, NumRows: 1, NumCols: rect.NumCols})
	names := make([]string, rect.NumCols)
	for i, v := range header[0] {
		switch s := v.(type) {
		case string:
			names[i] = s
		case nil:
		default:
			names[i] = fmt.Sprintf("%v", s)
		}
	}

	return RangeSnapshot{
		SheetName:   sheet.Name,
		ColumnNames: names,
		Columns:     rect.NumCols,
		Rows:        rect.NumRows - 1,
		A1:          rect.A1(),
	}
}
