// CLAUDE:SUMMARY Undirected join graph over lookup tables: one edge per shared code column, parallel edges kept, deterministic order.
package geocode

import "github.com/hazyhaar/geolookup/pkg/catalog"

// Edge joins a table to Table through Column.
type Edge struct {
	Table  string // table key
	Column string
}

// Graph is the join graph of a catalog. Nodes are table keys.
type Graph struct {
	tables []*catalog.LookupTable
	byKey  map[string]*catalog.LookupTable
	adj    map[string][]Edge
}

// BuildGraph connects every pair of distinct tables once per shared code
// column. Edge order follows catalog order then the table's code-column
// order, so identical catalogs give identical graphs.
func BuildGraph(cat *catalog.Catalog) *Graph {
	tables := cat.Tables()
	g := &Graph{
		tables: tables,
		byKey:  make(map[string]*catalog.LookupTable, len(tables)),
		adj:    make(map[string][]Edge, len(tables)),
	}
	for _, t := range tables {
		g.byKey[t.Key()] = t
	}
	for i, a := range tables {
		edges := []Edge{}
		for j, b := range tables {
			if i == j {
				continue
			}
			for _, col := range a.CodeColumns {
				if b.HasCodeColumn(col) {
					edges = append(edges, Edge{Table: b.Key(), Column: col})
				}
			}
		}
		g.adj[a.Key()] = edges
	}
	return g
}

// Tables returns the node tables in catalog order.
func (g *Graph) Tables() []*catalog.LookupTable { return g.tables }

// Table returns the table for key.
func (g *Graph) Table(key string) (*catalog.LookupTable, bool) {
	t, ok := g.byKey[key]
	return t, ok
}

// Neighbours returns the edges leaving key.
func (g *Graph) Neighbours(key string) []Edge { return g.adj[key] }

// EdgesBetween returns every join column linking a to b.
func (g *Graph) EdgesBetween(a, b string) []string {
	var cols []string
	for _, e := range g.adj[a] {
		if e.Table == b {
			cols = append(cols, e.Column)
		}
	}
	return cols
}

// shortestPath runs a breadth-first search from start to goal and returns
// the first shortest path found, as edges after the start node. A nil slice
// with ok=true means start == goal.
func (g *Graph) shortestPath(start, goal string) ([]Edge, bool) {
	if start == goal {
		return nil, true
	}
	type step struct {
		prev string
		via  Edge
	}
	visited := map[string]bool{start: true}
	parent := make(map[string]step)
	queue := []string{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, e := range g.adj[node] {
			if visited[e.Table] {
				continue
			}
			visited[e.Table] = true
			parent[e.Table] = step{prev: node, via: e}
			if e.Table == goal {
				var path []Edge
				for cur := goal; cur != start; cur = parent[cur].prev {
					path = append(path, parent[cur].via)
				}
				for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
					path[l], path[r] = path[r], path[l]
				}
				return path, true
			}
			queue = append(queue, e.Table)
		}
	}
	return nil, false
}
