package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hazyhaar/geolookup/pkg/geocode"
	"github.com/hazyhaar/geolookup/pkg/kit"
	hkit "github.com/hazyhaar/pkg/kit"
)

// NewRouter returns an http.Handler with all geolookup API routes.
func NewRouter(s *Service) http.Handler {
	mux := http.NewServeMux()
	h := &handler{
		routes:        hkit.Endpoint(routesEndpoint(s)),
		geocodes:      hkit.Endpoint(geocodesEndpoint(s)),
		geographies:   hkit.Endpoint(geographiesEndpoint(s)),
		geographyKeys: hkit.Endpoint(geographyKeysEndpoint(s)),
		collections:   hkit.Endpoint(collectionsEndpoint(s)),
		svc:           s,
	}

	mux.HandleFunc("GET /v1/routes", h.handleRoutes)
	mux.HandleFunc("GET /v1/geocodes", h.handleGeocodes)
	mux.HandleFunc("GET /v1/geographies", h.handleGeographies)
	mux.HandleFunc("GET /v1/geography-keys", h.handleGeographyKeys)
	mux.HandleFunc("GET /v1/collections", h.handleCollections)
	mux.HandleFunc("GET /v1/health", h.handleHealth)

	return cors(requestID(mux))
}

type handler struct {
	routes        hkit.Endpoint
	geocodes      hkit.Endpoint
	geographies   hkit.Endpoint
	geographyKeys hkit.Endpoint
	collections   hkit.Endpoint
	svc           *Service
}

// --- routes ---

func (h *handler) handleRoutes(w http.ResponseWriter, r *http.Request) {
	resp, err := h.routes(r.Context(), parseRoutesReq(r))
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- geocodes ---

func (h *handler) handleGeocodes(w http.ResponseWriter, r *http.Request) {
	req := &geocodesReq{routesReq: *parseRoutesReq(r)}
	if v := r.URL.Query().Get("routes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "routes must be an integer")
			return
		}
		req.Routes = n
	}

	resp, err := h.geocodes(r.Context(), req)
	if err != nil {
		writeEndpointError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		results := resp.(geocodesResponse).Results
		if len(results) == 0 {
			writeError(w, http.StatusNotFound, "no result")
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("X-Route", results[0].Route.String())
		for _, warn := range results[0].Warnings {
			w.Header().Add("Warning", `199 - "`+warn.Message+`"`)
		}
		w.WriteHeader(http.StatusOK)
		results[0].Table.WriteCSV(w)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- geographies ---

func (h *handler) handleGeographies(w http.ResponseWriter, r *http.Request) {
	resp, err := h.geographies(r.Context(), &geographiesReq{Collection: r.URL.Query().Get("collection")})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleGeographyKeys(w http.ResponseWriter, r *http.Request) {
	resp, err := h.geographyKeys(r.Context(), nil)
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleCollections(w http.ResponseWriter, r *http.Request) {
	resp, err := h.collections(r.Context(), nil)
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- health ---

type healthResponse struct {
	Status      string `json:"status"`
	Collections int    `json:"collections"`
	Tables      int    `json:"tables"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	lookup, _ := h.svc.current()
	cat := lookup.Catalog()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Collections: len(cat.Collections),
		Tables:      len(cat.Tables()),
	})
}

// --- helpers ---

func parseRoutesReq(r *http.Request) *routesReq {
	q := r.URL.Query()
	req := &routesReq{
		Start: q.Get("start"),
		End:   q.Get("end"),
	}
	for _, v := range q["la"] {
		for _, la := range strings.Split(v, ",") {
			if la = strings.TrimSpace(la); la != "" {
				req.LocalAuthorities = append(req.LocalAuthorities, la)
			}
		}
	}
	return req
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeEndpointError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, geocode.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case isNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// requestID propagates X-Request-ID into the context and echoes it back.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = kit.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithTransport(kit.WithRequestID(r.Context(), id), "http")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
