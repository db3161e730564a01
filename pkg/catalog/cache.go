// CLAUDE:SUMMARY JSON cache of the lookup catalog keyed by collection then table name; reload reproduces a fresh scan.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type tableRecord struct {
	Columns                 []string `json:"columns"`
	CodeColumns             []string `json:"code_columns"`
	CodeColumnCardinalities []int    `json:"code_column_cardinalities"`
}

// WriteCache persists cat to path. Keys are written sorted, which is also
// the scan order.
func WriteCache(path string, cat *Catalog) error {
	doc := make(map[string]map[string]tableRecord, len(cat.Collections))
	for _, col := range cat.Collections {
		tables := make(map[string]tableRecord, len(col.Tables))
		for _, t := range col.Tables {
			tables[t.Name] = tableRecord{
				Columns:                 t.Columns,
				CodeColumns:             t.CodeColumns,
				CodeColumnCardinalities: t.CodeColumnCardinalities,
			}
		}
		doc[col.Name] = tables
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal lookup index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write lookup index: %w", err)
	}
	return os.Rename(tmp, path)
}

// ReadCache loads a catalog written by WriteCache. A missing file is
// reported with an error wrapping os.ErrNotExist.
func ReadCache(path, root string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lookup index: %w", err)
	}
	var doc map[string]map[string]tableRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse lookup index %s: %w", path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse lookup index %s: empty document", path)
	}

	cat := &Catalog{Root: root}
	for _, colName := range sortedKeys(doc) {
		col := &Collection{Name: colName}
		tables := doc[colName]
		for _, name := range sortedKeys(tables) {
			rec := tables[name]
			if len(rec.CodeColumns) != len(rec.CodeColumnCardinalities) {
				return nil, fmt.Errorf("lookup index %s: %s/%s has %d code columns but %d cardinalities",
					path, colName, name, len(rec.CodeColumns), len(rec.CodeColumnCardinalities))
			}
			col.Tables = append(col.Tables, &LookupTable{
				Name:                    name,
				Collection:              colName,
				Columns:                 orEmpty(rec.Columns),
				CodeColumns:             orEmpty(rec.CodeColumns),
				CodeColumnCardinalities: orEmptyInts(rec.CodeColumnCardinalities),
			})
		}
		cat.Collections = append(cat.Collections, col)
	}
	return cat, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
