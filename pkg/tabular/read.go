// CLAUDE:SUMMARY Reads .csv and .xlsx lookup tables: normalised headers, latin-1 fallback, streaming cardinality profile, full load.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ErrUnsupportedFileType is returned for files that are neither .csv nor .xlsx.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// FallbackEncoding is used when a CSV file is not valid UTF-8.
const FallbackEncoding = "latin1"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Supported reports whether path has a readable extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Reader opens lookup tables. Column names are trimmed and upper-cased and
// Ignored columns are removed before anything else sees them.
type Reader struct {
	Ignored []string
	Logger  *slog.Logger
}

// Profile is the metadata of a table: its columns and, for the columns that
// were asked for, the number of distinct non-null values.
type Profile struct {
	Columns     []string
	Cardinality map[string]int
}

// rowSource yields a header then data rows until io.EOF.
type rowSource interface {
	header() []string
	next() ([]string, error)
	close() error
}

func (r *Reader) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Reader) open(path string) (rowSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return r.openCSV(path)
	case ".xlsx":
		return openXLSX(path)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFileType)
	}
}

// Profile streams the table once, counting distinct values of every column
// for which want returns true. Rows are never retained.
func (r *Reader) Profile(path string, want func(column string) bool) (*Profile, error) {
	src, err := r.open(path)
	if err != nil {
		return nil, err
	}
	defer src.close()

	cols, keep := r.normalizeHeader(src.header())
	p := &Profile{Columns: cols, Cardinality: make(map[string]int)}

	type counter struct {
		name string
		idx  int
		seen map[string]struct{}
	}
	var counters []counter
	for j, c := range cols {
		if want != nil && want(c) {
			counters = append(counters, counter{name: c, idx: keep[j], seen: make(map[string]struct{})})
		}
	}

	for {
		rec, err := src.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		for _, c := range counters {
			if c.idx >= len(rec) {
				continue
			}
			if v := strings.TrimSpace(rec[c.idx]); v != "" {
				c.seen[v] = struct{}{}
			}
		}
	}

	for _, c := range counters {
		p.Cardinality[c.name] = len(c.seen)
	}
	return p, nil
}

// Load reads the whole table into a Frame.
func (r *Reader) Load(path string) (*Frame, error) {
	src, err := r.open(path)
	if err != nil {
		return nil, err
	}
	defer src.close()

	cols, keep := r.normalizeHeader(src.header())
	f := &Frame{Columns: cols}
	for {
		rec, err := src.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		row := make([]string, len(keep))
		for j, i := range keep {
			if i < len(rec) {
				row[j] = strings.TrimSpace(rec[i])
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}

// normalizeHeader returns the kept column names and their source positions.
func (r *Reader) normalizeHeader(raw []string) ([]string, []int) {
	ignored := make(map[string]bool, len(r.Ignored))
	for _, c := range r.Ignored {
		ignored[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	var cols []string
	var keep []int
	for i, h := range raw {
		name := strings.ToUpper(strings.TrimSpace(h))
		if name == "" || ignored[name] {
			continue
		}
		cols = append(cols, name)
		keep = append(keep, i)
	}
	return cols, keep
}

// --- csv ---

type csvSource struct {
	r   *csv.Reader
	hdr []string
}

func (r *Reader) openCSV(path string) (*csvSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var reader io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		e, err := htmlindex.Get(FallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", FallbackEncoding, err)
		}
		r.logger().Info("file is not utf-8, decoding as latin-1", "file", filepath.Base(path))
		reader = transform.NewReader(reader, e.NewDecoder())
	}

	cr := csv.NewReader(reader)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%s: missing header row", filepath.Base(path))
		}
		return nil, fmt.Errorf("read header %s: %w", filepath.Base(path), err)
	}
	return &csvSource{r: cr, hdr: hdr}, nil
}

func (s *csvSource) header() []string        { return s.hdr }
func (s *csvSource) next() ([]string, error) { return s.r.Read() }
func (s *csvSource) close() error            { return nil }

// --- xlsx ---

// xlsxSource streams the first worksheet.
type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
	hdr  []string
}

func openXLSX(path string) (*xlsxSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("%s: workbook has no sheets", filepath.Base(path))
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("rows %s: %w", filepath.Base(path), err)
	}
	s := &xlsxSource{file: f, rows: rows}
	hdr, err := s.next()
	if err != nil {
		s.close()
		if err == io.EOF {
			return nil, fmt.Errorf("%s: missing header row", filepath.Base(path))
		}
		return nil, err
	}
	s.hdr = hdr
	return s, nil
}

func (s *xlsxSource) header() []string { return s.hdr }

func (s *xlsxSource) next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return s.rows.Columns()
}

func (s *xlsxSource) close() error {
	s.rows.Close()
	return s.file.Close()
}
