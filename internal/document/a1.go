package document

import (
	"fmt"
	"strconv"
	"strings"
)

// Rect is a rectangular range in 1-based sheet coordinates.
type Rect struct {
	Row     int
	Col     int
	NumRows int
	NumCols int
}

// IsZero reports whether the rect covers no cells.
func (r Rect) IsZero() bool {
	return r.NumRows <= 0 || r.NumCols <= 0
}

// A1 renders the rect in A1 notation, e.g. {1,1,3,2} -> "A1:B3".
// A single cell renders without the colon.
func (r Rect) A1() string {
	if r.IsZero() {
		return ""
	}
	start := colName(r.Col) + strconv.Itoa(r.Row)
	if r.NumRows == 1 && r.NumCols == 1 {
		return start
	}
	end := colName(r.Col+r.NumCols-1) + strconv.Itoa(r.Row+r.NumRows-1)
	return start + ":" + end
}

// ParseA1 parses A1 notation ("B2:D10" or a single cell "B2") into a Rect.
func ParseA1(s string) (Rect, error) {
	if s == "" {
		return Rect{}, fmt.Errorf("empty range")
	}
	start, end, found := strings.Cut(s, ":")
	if !found {
		end = start
	}
	r1, c1, err := parseCell(start)
	if err != nil {
		return Rect{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	r2, c2, err := parseCell(end)
	if err != nil {
		return Rect{}, fmt.Errorf("invalid range %q: %w", s, err)
	}
	if r2 < r1 || c2 < c1 {
		return Rect{}, fmt.Errorf("invalid range %q: end before start", s)
	}
	return Rect{Row: r1, Col: c1, NumRows: r2 - r1 + 1, NumCols: c2 - c1 + 1}, nil
}

// DataRect returns the rect covering the sheet's used values, anchored at A1.
func (s *Sheet) DataRect() Rect {
	rows := len(s.Values)
	cols := 0
	for _, row := range s.Values {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if rows == 0 || cols == 0 {
		return Rect{}
	}
	return Rect{Row: 1, Col: 1, NumRows: rows, NumCols: cols}
}

// Slice extracts the rect from the sheet's values. Cells outside the stored
// matrix come back as empty strings so the result is always dense.
func (s *Sheet) Slice(r Rect) [][]any {
	if r.IsZero() {
		return nil
	}
	out := make([][]any, r.NumRows)
	for i := 0; i < r.NumRows; i++ {
		row := make([]any, r.NumCols)
		srcRow := r.Row - 1 + i
		for j := 0; j < r.NumCols; j++ {
			srcCol := r.Col - 1 + j
			if srcRow < len(s.Values) && srcCol < len(s.Values[srcRow]) {
				row[j] = s.Values[srcRow][srcCol]
			} else {
				row[j] = ""
			}
		}
		out[i] = row
	}
	return out
}

func parseCell(s string) (row, col int, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(s) {
		return 0, 0, fmt.Errorf("malformed cell %q", s)
	}
	row, err = strconv.Atoi(s[i:])
	if err != nil || row < 1 || col < 1 {
		return 0, 0, fmt.Errorf("malformed cell %q", s)
	}
	return row, col, nil
}

func colName(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
