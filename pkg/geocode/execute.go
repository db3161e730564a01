// CLAUDE:SUMMARY Join executor: loads route tables, left-joins them in order, dedupes, and filters by local authority with observable fallback.
package geocode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/geolookup/pkg/catalog"
	"github.com/hazyhaar/geolookup/pkg/tabular"
)

// TableLoader returns the full contents of a lookup table.
type TableLoader interface {
	Load(ctx context.Context, path string) (*tabular.Frame, error)
}

// Result is the table produced by one route.
type Result struct {
	Route    Route          `json:"route"`
	Table    *tabular.Frame `json:"table"`
	Warnings []Warning      `json:"warnings,omitempty"`
}

// Executor turns routes into tables.
type Executor struct {
	Catalog    *catalog.Catalog
	Loader     TableLoader
	Convention catalog.Convention
	// NormalizeNames compares local-authority names case- and accent-insensitively.
	NormalizeNames bool
	Logger         *slog.Logger
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Execute loads and joins the route's tables. The route must hold in the
// catalog (see Route.Validate). When localAuthorities are given the joined
// table is always limited to them; constrain additionally filters the start
// table before joining, and is the only filter a single-table route gets. A
// filter that finds no local-authority column or no matching rows leaves the
// table unfiltered and adds a Warning.
func (e *Executor) Execute(ctx context.Context, route Route, localAuthorities []string, constrain bool) (*Result, error) {
	if err := route.Validate(e.Catalog); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	res := &Result{Route: route}
	hasLA := len(localAuthorities) > 0

	acc, err := e.load(ctx, route[0])
	if err != nil {
		return nil, err
	}

	if len(route) == 1 {
		acc = acc.DropNullColumns()
		if constrain && hasLA {
			acc = e.filterLocalAuthority(res, acc, localAuthorities)
		}
		res.Table = acc
		return res, nil
	}

	if constrain && hasLA {
		acc = e.filterLocalAuthority(res, acc, localAuthorities)
	}
	for _, hop := range route[1:] {
		right, err := e.load(ctx, hop)
		if err != nil {
			return nil, err
		}
		acc, err = acc.LeftJoin(right, hop.Column)
		if err != nil {
			return nil, fmt.Errorf("join %s: %w", hop.Table, err)
		}
	}
	acc = acc.DropDuplicates().DropNullColumns()
	if hasLA {
		acc = e.filterLocalAuthority(res, acc, localAuthorities)
	}
	res.Table = acc
	return res, nil
}

func (e *Executor) load(ctx context.Context, h Hop) (*tabular.Frame, error) {
	t, ok := e.Catalog.Table(h.Key())
	if !ok {
		return nil, fmt.Errorf("route table %s not in catalog", h.Key())
	}
	f, err := e.Loader.Load(ctx, e.Catalog.Path(t))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", h.Key(), err)
	}
	return f, nil
}

// filterLocalAuthority keeps rows whose local-authority name is listed. It
// never returns an empty table: failures fall back to f plus a Warning.
func (e *Executor) filterLocalAuthority(res *Result, f *tabular.Frame, localAuthorities []string) *tabular.Frame {
	conv := e.Convention.WithDefaults()
	col := localAuthorityNameColumn(conv, f.Columns)
	if col == "" {
		e.warn(res, ErrNoLocalAuthorityColumn,
			fmt.Sprintf("couldn't find a local authority column in %s, returning full table", res.Route.String()))
		return f
	}

	var filtered *tabular.Frame
	var err error
	if e.NormalizeNames {
		want := make(map[string]struct{}, len(localAuthorities))
		for _, la := range localAuthorities {
			want[NormalizeName(la)] = struct{}{}
		}
		filtered, err = f.Filter(col, func(v string) bool {
			_, ok := want[NormalizeName(v)]
			return ok
		})
	} else {
		filtered, err = f.FilterIn(col, localAuthorities)
	}
	if err != nil || filtered.Len() == 0 {
		e.warn(res, ErrLocalAuthorityNotFound,
			fmt.Sprintf("couldn't limit %s to %v on %s, returning full table", res.Route.String(), localAuthorities, col))
		return f
	}
	return filtered.DropDuplicates()
}

func (e *Executor) warn(res *Result, kind error, msg string) {
	res.Warnings = append(res.Warnings, Warning{Kind: kind, Message: msg})
	e.logger().Warn(msg, "kind", kind.Error())
}
