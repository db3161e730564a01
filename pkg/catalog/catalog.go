// CLAUDE:SUMMARY Lookup catalog: per-collection index of lookup tables, their code columns and cardinalities, built by scanning or read from cache.
package catalog

import (
	"path/filepath"
	"slices"
)

// LookupTable is the metadata of one lookup file. It is immutable once built.
type LookupTable struct {
	Name       string
	Collection string
	// Columns holds every column in file order, upper-cased.
	Columns []string
	// CodeColumns is the subset of Columns accepted by the convention's code test.
	CodeColumns []string
	// CodeColumnCardinalities is aligned with CodeColumns.
	CodeColumnCardinalities []int
}

// Key identifies the table across collections.
func (t *LookupTable) Key() string { return t.Collection + "/" + t.Name }

// HasColumn reports whether column is anywhere in the table.
func (t *LookupTable) HasColumn(column string) bool {
	return slices.Contains(t.Columns, column)
}

// HasCodeColumn reports whether column is one of the table's code columns.
func (t *LookupTable) HasCodeColumn(column string) bool {
	return slices.Contains(t.CodeColumns, column)
}

// MaxCardinality returns the highest code-column cardinality, or 0.
func (t *LookupTable) MaxCardinality() int {
	m := 0
	for _, n := range t.CodeColumnCardinalities {
		m = max(m, n)
	}
	return m
}

// Collection groups the tables of one lookup year/folder, sorted by name.
type Collection struct {
	Name   string
	Tables []*LookupTable
}

// Catalog is the ordered set of collections found under Root. Iteration
// order is collection name then table name, which keeps path resolution
// reproducible.
type Catalog struct {
	Root        string
	Collections []*Collection
}

// Tables returns every table in catalog order.
func (c *Catalog) Tables() []*LookupTable {
	var out []*LookupTable
	for _, col := range c.Collections {
		out = append(out, col.Tables...)
	}
	return out
}

// Collection returns the named collection.
func (c *Catalog) Collection(name string) (*Collection, bool) {
	for _, col := range c.Collections {
		if col.Name == name {
			return col, true
		}
	}
	return nil, false
}

// CollectionNames lists the collection identifiers in order.
func (c *Catalog) CollectionNames() []string {
	names := make([]string, len(c.Collections))
	for i, col := range c.Collections {
		names[i] = col.Name
	}
	return names
}

// Table looks a table up by Key.
func (c *Catalog) Table(key string) (*LookupTable, bool) {
	for _, col := range c.Collections {
		for _, t := range col.Tables {
			if t.Key() == key {
				return t, true
			}
		}
	}
	return nil, false
}

// Path returns the file path of t.
func (c *Catalog) Path(t *LookupTable) string {
	return filepath.Join(c.Root, t.Collection, t.Name)
}
