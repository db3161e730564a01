// CLAUDE:SUMMARY Lookup facade: builds the graph per request from a cached catalog, resolves routes and executes the first n of them.
package geocode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/geolookup/pkg/catalog"
)

// DefaultRoutes is how many routes FilteredGeocodes executes by default.
const DefaultRoutes = 3

// Options configures a Lookup.
type Options struct {
	Convention               catalog.Convention
	MaxCardinalityEndSearch  bool
	LocalAuthorityConstraint bool
	AllJoinColumns           bool
	NormalizeNames           bool
	Logger                   *slog.Logger
}

// Lookup resolves and executes geocode join routes over one catalog.
type Lookup struct {
	cat      *catalog.Catalog
	opts     Options
	resolver *Resolver
	executor *Executor
}

// New creates a Lookup. The catalog is treated as read-only.
func New(cat *catalog.Catalog, loader TableLoader, opts Options) *Lookup {
	opts.Convention = opts.Convention.WithDefaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Lookup{
		cat:  cat,
		opts: opts,
		resolver: &Resolver{
			Convention:     opts.Convention,
			AllJoinColumns: opts.AllJoinColumns,
			Logger:         opts.Logger,
		},
		executor: &Executor{
			Catalog:        cat,
			Loader:         loader,
			Convention:     opts.Convention,
			NormalizeNames: opts.NormalizeNames,
			Logger:         opts.Logger,
		},
	}
}

// Release drops the tables cached by the lookup's loader, if it caches any.
// The lookup stays usable; later executions read from disk again.
func (l *Lookup) Release() {
	if f, ok := l.executor.Loader.(interface{ Forget() }); ok {
		f.Forget()
	}
}

// Catalog returns the catalog the lookup works on.
func (l *Lookup) Catalog() *catalog.Catalog { return l.cat }

// Query builds a PathQuery using the lookup's defaults.
func (l *Lookup) Query(start, end string, localAuthorities []string) PathQuery {
	return PathQuery{
		StartingColumn:             start,
		EndingColumn:               end,
		LocalAuthorities:           localAuthorities,
		UseMaxCardinalityEndSearch: l.opts.MaxCardinalityEndSearch,
		RequireLocalAuthorityStart: l.opts.LocalAuthorityConstraint,
	}
}

// Resolve returns the minimal routes for q. A fresh graph is built per call.
func (l *Lookup) Resolve(q PathQuery) ([]Route, error) {
	if q.RequireLocalAuthorityStart && len(q.LocalAuthorities) == 0 {
		return nil, fmt.Errorf("%w: local authority constraint needs at least one local authority", ErrInvalidQuery)
	}
	routes, err := l.resolver.Resolve(BuildGraph(l.cat), q)
	if err != nil {
		return nil, err
	}
	for i, rt := range routes {
		l.opts.Logger.Debug("route", "n", i+1, "route", rt.String())
	}
	return routes, nil
}

// Execute runs one route.
func (l *Lookup) Execute(ctx context.Context, route Route, localAuthorities []string, constrain bool) (*Result, error) {
	return l.executor.Execute(ctx, route, localAuthorities, constrain)
}

// FilteredGeocodes resolves q and executes its first n routes (DefaultRoutes
// when n <= 0). Joined tables are limited to q.LocalAuthorities whenever any
// are given; q.RequireLocalAuthorityStart also filters the start table.
func (l *Lookup) FilteredGeocodes(ctx context.Context, q PathQuery, n int) ([]*Result, error) {
	routes, err := l.Resolve(q)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultRoutes
	}
	if len(routes) > n {
		routes = routes[:n]
	}
	results := make([]*Result, 0, len(routes))
	for _, rt := range routes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := l.executor.Execute(ctx, rt, q.LocalAuthorities, q.RequireLocalAuthorityStart)
		if err != nil {
			return nil, fmt.Errorf("execute %s: %w", rt.String(), err)
		}
		results = append(results, res)
	}
	return results, nil
}
