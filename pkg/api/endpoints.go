package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/geolookup/pkg/geocode"
	"github.com/hazyhaar/geolookup/pkg/geohelper"
	"github.com/hazyhaar/geolookup/pkg/kit"
)

// Shared request/response types used by both HTTP and MCP transports.

type routesReq struct {
	Start            string
	End              string
	LocalAuthorities []string
}

type geocodesReq struct {
	routesReq
	Routes int
}

type geographiesReq struct {
	Collection string
}

type routeView struct {
	Route geocode.Route `json:"route"`
	Text  string        `json:"text"`
}

type routesResponse struct {
	Start  string      `json:"start"`
	End    string      `json:"end"`
	Routes []routeView `json:"routes"`
}

type geocodesResponse struct {
	Results []*geocode.Result `json:"results"`
}

type geographiesResponse struct {
	Collection  string   `json:"collection,omitempty"`
	Geographies []string `json:"geographies"`
}

type keysResponse struct {
	Hint string                   `json:"hint"`
	Keys []geohelper.GeographyKey `json:"keys"`
}

type collectionsResponse struct {
	Collections []string `json:"collections"`
}

// Service bundles what the endpoints need. The lookup can be swapped while
// serving (catalog reload).
type Service struct {
	mu     sync.RWMutex
	lookup *geocode.Lookup
	helper *geohelper.Helper

	routes int
	logger *slog.Logger
}

// NewService creates a Service. routes is the default number of routes
// executed per geocode request.
func NewService(lookup *geocode.Lookup, routes int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if routes <= 0 {
		routes = geocode.DefaultRoutes
	}
	return &Service{
		lookup: lookup,
		helper: geohelper.New(lookup.Catalog()),
		routes: routes,
		logger: logger,
	}
}

// Swap replaces the lookup, e.g. after the catalog was rebuilt, and drops
// the tables the previous one had cached.
func (s *Service) Swap(lookup *geocode.Lookup) {
	helper := geohelper.New(lookup.Catalog())
	s.mu.Lock()
	old := s.lookup
	s.lookup, s.helper = lookup, helper
	s.mu.Unlock()
	if old != nil && old != lookup {
		old.Release()
	}
}

func (s *Service) current() (*geocode.Lookup, *geohelper.Helper) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup, s.helper
}

// endpoint wraps ep with request IDs and logging.
func (s *Service) endpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.WithRequest(), kit.Logging(s.logger, name))(ep)
}

// query applies the lookup defaults. The local-authority constraint only
// applies when local authorities are given.
func query(l *geocode.Lookup, req routesReq) geocode.PathQuery {
	q := l.Query(req.Start, req.End, req.LocalAuthorities)
	if len(req.LocalAuthorities) == 0 {
		q.RequireLocalAuthorityStart = false
	}
	return q
}

func routesEndpoint(s *Service) kit.Endpoint {
	return s.endpoint("routes", func(_ context.Context, request any) (any, error) {
		req := request.(*routesReq)
		lookup, _ := s.current()
		routes, err := lookup.Resolve(query(lookup, *req))
		if err != nil {
			return nil, err
		}
		resp := routesResponse{Start: req.Start, End: req.End, Routes: make([]routeView, len(routes))}
		for i, rt := range routes {
			resp.Routes[i] = routeView{Route: rt, Text: rt.String()}
		}
		return resp, nil
	})
}

func geocodesEndpoint(s *Service) kit.Endpoint {
	return s.endpoint("geocodes", func(ctx context.Context, request any) (any, error) {
		req := request.(*geocodesReq)
		n := req.Routes
		if n <= 0 {
			n = s.routes
		}
		if n > maxRoutes {
			return nil, fmt.Errorf("%w: too many routes (max %d, got %d)", geocode.ErrInvalidQuery, maxRoutes, n)
		}
		lookup, _ := s.current()
		results, err := lookup.FilteredGeocodes(ctx, query(lookup, req.routesReq), n)
		if err != nil {
			return nil, err
		}
		return geocodesResponse{Results: results}, nil
	})
}

func geographiesEndpoint(s *Service) kit.Endpoint {
	return s.endpoint("geographies", func(_ context.Context, request any) (any, error) {
		req := request.(*geographiesReq)
		_, helper := s.current()
		geos, err := helper.AvailableGeographies(req.Collection)
		if err != nil {
			return nil, err
		}
		return geographiesResponse{Collection: req.Collection, Geographies: geos}, nil
	})
}

func geographyKeysEndpoint(s *Service) kit.Endpoint {
	return s.endpoint("geography_keys", func(_ context.Context, _ any) (any, error) {
		return keysResponse{Hint: geohelper.Hint, Keys: geohelper.GeographyKeys()}, nil
	})
}

func collectionsEndpoint(s *Service) kit.Endpoint {
	return s.endpoint("collections", func(_ context.Context, _ any) (any, error) {
		_, helper := s.current()
		return collectionsResponse{Collections: helper.Collections()}, nil
	})
}

const maxRoutes = 20

// isNotFound reports whether err means the catalog has no answer, as opposed
// to a malformed request or an internal failure.
func isNotFound(err error) bool {
	return errors.Is(err, geocode.ErrNoStartTable) ||
		errors.Is(err, geocode.ErrNoEndTable) ||
		errors.Is(err, geocode.ErrNoConnectingPath) ||
		errors.Is(err, geohelper.ErrUnknownCollection)
}
