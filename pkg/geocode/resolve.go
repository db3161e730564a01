// CLAUDE:SUMMARY Path resolver: start/end table discovery, BFS over every (start,end) pair, returns all minimal-length routes in discovery order.
package geocode

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/geolookup/pkg/catalog"
)

// PathQuery asks for join routes from one geographic code column to another.
type PathQuery struct {
	StartingColumn   string
	EndingColumn     string
	LocalAuthorities []string
	// UseMaxCardinalityEndSearch restricts end tables to those reaching the
	// catalog-wide maximum code-column cardinality. This is a heuristic to
	// prefer the most complete source table; it can drop valid tables or keep
	// unsuitable ones and is off by default.
	UseMaxCardinalityEndSearch bool
	// RequireLocalAuthorityStart restricts start tables to those that carry
	// a local-authority name column.
	RequireLocalAuthorityStart bool
}

func (q PathQuery) normalized() PathQuery {
	q.StartingColumn = strings.ToUpper(strings.TrimSpace(q.StartingColumn))
	q.EndingColumn = strings.ToUpper(strings.TrimSpace(q.EndingColumn))
	return q
}

// Resolver finds minimal join routes over a Graph.
type Resolver struct {
	Convention catalog.Convention
	// AllJoinColumns adds, after each minimal route, its variants through the
	// other columns shared by the same consecutive tables.
	AllJoinColumns bool
	Logger         *slog.Logger
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// StartTables returns the candidate start tables in catalog order.
func (r *Resolver) StartTables(g *Graph, q PathQuery) []*catalog.LookupTable {
	q = q.normalized()
	conv := r.Convention.WithDefaults()
	var out []*catalog.LookupTable
	for _, t := range g.Tables() {
		if !t.HasCodeColumn(q.StartingColumn) {
			continue
		}
		if q.RequireLocalAuthorityStart && !hasLocalAuthorityName(conv, t.Columns) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// EndTables returns the candidate end tables in catalog order.
func (r *Resolver) EndTables(g *Graph, q PathQuery) []*catalog.LookupTable {
	q = q.normalized()
	maxCard := 0
	if q.UseMaxCardinalityEndSearch {
		for _, t := range g.Tables() {
			maxCard = max(maxCard, t.MaxCardinality())
		}
	}
	var out []*catalog.LookupTable
	for _, t := range g.Tables() {
		if !t.HasColumn(q.EndingColumn) {
			continue
		}
		if q.UseMaxCardinalityEndSearch && t.MaxCardinality() != maxCard {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Resolve returns every route of minimal length linking a start table to an
// end table. Ties keep discovery order: start tables in catalog order, then
// end tables in catalog order.
func (r *Resolver) Resolve(g *Graph, q PathQuery) ([]Route, error) {
	q = q.normalized()
	if q.StartingColumn == "" || q.EndingColumn == "" {
		return nil, fmt.Errorf("%w: starting and ending columns are required", ErrInvalidQuery)
	}

	starts := r.StartTables(g, q)
	if len(starts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStartTable, q.StartingColumn)
	}
	ends := r.EndTables(g, q)
	if len(ends) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEndTable, q.EndingColumn)
	}
	r.logger().Debug("path candidates", "start", q.StartingColumn, "end", q.EndingColumn,
		"start_tables", len(starts), "end_tables", len(ends))

	var found []Route
	for _, s := range starts {
		for _, e := range ends {
			path, ok := g.shortestPath(s.Key(), e.Key())
			if !ok {
				continue
			}
			found = append(found, routeFrom(g, s.Key(), path))
		}
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoConnectingPath, q.StartingColumn, q.EndingColumn)
	}

	shortest := len(found[0])
	for _, rt := range found {
		shortest = min(shortest, len(rt))
	}

	var routes []Route
	seen := make(map[string]bool)
	add := func(rt Route) {
		k := routeKey(rt)
		if seen[k] {
			return
		}
		seen[k] = true
		routes = append(routes, rt)
	}
	for _, rt := range found {
		if len(rt) != shortest {
			continue
		}
		add(rt)
		if r.AllJoinColumns {
			for _, v := range joinVariants(g, rt) {
				add(v)
			}
		}
	}
	return routes, nil
}

// joinVariants lists the routes visiting the same tables as rt through any
// combination of their shared columns, rt itself included.
func joinVariants(g *Graph, rt Route) []Route {
	variants := []Route{{rt[0]}}
	for i := 1; i < len(rt); i++ {
		cols := g.EdgesBetween(rt[i-1].Key(), rt[i].Key())
		var next []Route
		for _, v := range variants {
			for _, c := range cols {
				hop := rt[i]
				hop.Column = c
				nv := append(append(Route{}, v...), hop)
				next = append(next, nv)
			}
		}
		variants = next
	}
	return variants
}

func routeKey(rt Route) string {
	var sb strings.Builder
	for _, h := range rt {
		sb.WriteString(h.Key())
		sb.WriteByte('|')
		sb.WriteString(h.Column)
		sb.WriteByte(';')
	}
	return sb.String()
}

func hasLocalAuthorityName(conv catalog.Convention, columns []string) bool {
	return localAuthorityNameColumn(conv, columns) != ""
}

// localAuthorityNameColumn returns the first column, in order, that names
// local authorities.
func localAuthorityNameColumn(conv catalog.Convention, columns []string) string {
	for _, c := range columns {
		if conv.IsLocalAuthorityName(c) {
			return c
		}
	}
	return ""
}
