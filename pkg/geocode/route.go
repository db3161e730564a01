package geocode

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/geolookup/pkg/catalog"
)

// Hop is one table of a route. Column is the join column linking it to the
// accumulated table and is empty for the first hop.
type Hop struct {
	Table      string `json:"table"`
	Collection string `json:"collection"`
	Column     string `json:"column,omitempty"`
}

// Key returns the catalog key of the hop's table.
func (h Hop) Key() string { return h.Collection + "/" + h.Table }

// Route is a join chain: a start table followed by the tables joined to it
// in order. A single-hop route means both columns live in one table.
type Route []Hop

// Start returns the first table of the route.
func (r Route) Start() Hop { return r[0] }

// String renders the route on one line, e.g. "ward.csv -> lsoa.csv [WD22CD]".
func (r Route) String() string {
	var sb strings.Builder
	for i, h := range r {
		if i > 0 {
			fmt.Fprintf(&sb, " -> %s [%s]", h.Table, h.Column)
			continue
		}
		sb.WriteString(h.Table)
	}
	return sb.String()
}

// Describe renders the route one join per line.
func (r Route) Describe() string {
	if len(r) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Starting table: %s (%s)\n", r[0].Table, r[0].Collection)
	for _, h := range r[1:] {
		fmt.Fprintf(&sb, "  joined to %s (%s) via %s\n", h.Table, h.Collection, h.Column)
	}
	return sb.String()
}

// Validate checks that every join column exists in both tables it links.
func (r Route) Validate(cat *catalog.Catalog) error {
	if len(r) == 0 {
		return fmt.Errorf("empty route")
	}
	prev, ok := cat.Table(r[0].Key())
	if !ok {
		return fmt.Errorf("route table %s not in catalog", r[0].Key())
	}
	for _, h := range r[1:] {
		t, ok := cat.Table(h.Key())
		if !ok {
			return fmt.Errorf("route table %s not in catalog", h.Key())
		}
		if !prev.HasColumn(h.Column) || !t.HasColumn(h.Column) {
			return fmt.Errorf("join column %s not shared by %s and %s", h.Column, prev.Name, t.Name)
		}
		prev = t
	}
	return nil
}

func routeFrom(g *Graph, start string, path []Edge) Route {
	s, _ := g.Table(start)
	r := Route{{Table: s.Name, Collection: s.Collection}}
	for _, e := range path {
		t, _ := g.Table(e.Table)
		r = append(r, Hop{Table: t.Name, Collection: t.Collection, Column: e.Column})
	}
	return r
}
