// CLAUDE:SUMMARY In-memory string table with pandas-style left join, column/row filters, dedupe and CSV output.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Frame is a rectangular string table. Column names are upper-cased on load.
// An empty cell is treated as null.
type Frame struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewFrame builds a frame that owns copies of columns and rows, padding or
// truncating rows to the column count.
func NewFrame(columns []string, rows [][]string) *Frame {
	f := &Frame{Columns: append([]string(nil), columns...), Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		f.Rows = append(f.Rows, fitRow(r, len(columns)))
	}
	return f
}

func fitRow(r []string, n int) []string {
	out := make([]string, n)
	copy(out, r)
	return out
}

// Clone returns a deep copy of f. Every other operation that returns a Frame
// also returns storage the caller owns.
func (f *Frame) Clone() *Frame {
	out := &Frame{Columns: append([]string(nil), f.Columns...), Rows: make([][]string, len(f.Rows))}
	for i, r := range f.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Index returns the position of column name (case-insensitive) or -1.
func (f *Frame) Index(name string) int {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the frame carries the column.
func (f *Frame) Has(name string) bool { return f.Index(name) >= 0 }

// Column returns a copy of the named column's values, or nil if absent.
func (f *Frame) Column(name string) []string {
	idx := f.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r[idx]
	}
	return out
}

// Unique returns the distinct non-null values of a column in first-seen order.
func (f *Frame) Unique(name string) []string {
	idx := f.Index(name)
	if idx < 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, r := range f.Rows {
		v := r[idx]
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// DropColumns returns a frame without the named columns.
func (f *Frame) DropColumns(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[strings.ToUpper(n)] = true
	}
	var keep []int
	for i, c := range f.Columns {
		if !drop[c] {
			keep = append(keep, i)
		}
	}
	return f.project(keep)
}

// DropNullColumns removes every column whose cells are all empty.
func (f *Frame) DropNullColumns() *Frame {
	var keep []int
	for i := range f.Columns {
		for _, r := range f.Rows {
			if r[i] != "" {
				keep = append(keep, i)
				break
			}
		}
	}
	return f.project(keep)
}

func (f *Frame) project(idx []int) *Frame {
	cols := make([]string, len(idx))
	for j, i := range idx {
		cols[j] = f.Columns[i]
	}
	rows := make([][]string, len(f.Rows))
	for k, r := range f.Rows {
		nr := make([]string, len(idx))
		for j, i := range idx {
			nr[j] = r[i]
		}
		rows[k] = nr
	}
	return &Frame{Columns: cols, Rows: rows}
}

// DropDuplicates removes repeated rows, keeping the first occurrence.
func (f *Frame) DropDuplicates() *Frame {
	seen := make(map[string]struct{}, len(f.Rows))
	out := &Frame{Columns: append([]string(nil), f.Columns...), Rows: make([][]string, 0, len(f.Rows))}
	for _, r := range f.Rows {
		key := strings.Join(r, "\x00")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out.Rows = append(out.Rows, append([]string(nil), r...))
	}
	return out
}

// Filter keeps the rows whose value in column satisfies keep.
func (f *Frame) Filter(column string, keep func(string) bool) (*Frame, error) {
	idx := f.Index(column)
	if idx < 0 {
		return nil, fmt.Errorf("filter: column %q not found", column)
	}
	out := &Frame{Columns: append([]string(nil), f.Columns...)}
	for _, r := range f.Rows {
		if keep(r[idx]) {
			out.Rows = append(out.Rows, append([]string(nil), r...))
		}
	}
	return out, nil
}

// FilterIn keeps the rows whose value in column is one of values.
func (f *Frame) FilterIn(column string, values []string) (*Frame, error) {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return f.Filter(column, func(v string) bool {
		_, ok := set[v]
		return ok
	})
}

// LeftJoin merges right into f on the shared column. Every left row is kept;
// a left row matching several right rows is repeated once per match. When a
// non-key column exists on both sides the left copy wins and the incoming one
// is discarded. Null keys never match.
func (f *Frame) LeftJoin(right *Frame, on string) (*Frame, error) {
	on = strings.ToUpper(strings.TrimSpace(on))
	li := f.Index(on)
	if li < 0 {
		return nil, fmt.Errorf("join on %s: column missing from left table", on)
	}
	ri := right.Index(on)
	if ri < 0 {
		return nil, fmt.Errorf("join on %s: column missing from right table", on)
	}

	var extra []int
	cols := append([]string(nil), f.Columns...)
	for i, c := range right.Columns {
		if i == ri || f.Has(c) {
			continue
		}
		extra = append(extra, i)
		cols = append(cols, c)
	}

	byKey := make(map[string][]int)
	for i, r := range right.Rows {
		if k := r[ri]; k != "" {
			byKey[k] = append(byKey[k], i)
		}
	}

	out := &Frame{Columns: cols, Rows: make([][]string, 0, len(f.Rows))}
	for _, l := range f.Rows {
		matches := byKey[l[li]]
		if l[li] == "" || len(matches) == 0 {
			row := make([]string, len(cols))
			copy(row, l)
			out.Rows = append(out.Rows, row)
			continue
		}
		for _, m := range matches {
			row := make([]string, len(cols))
			copy(row, l)
			for j, i := range extra {
				row[len(l)+j] = right.Rows[m][i]
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// WriteCSV writes the frame with a header row.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(f.Rows); err != nil {
		return err
	}
	return cw.Error()
}
