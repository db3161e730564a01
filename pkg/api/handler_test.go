package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/geolookup/pkg/catalog"
	"github.com/hazyhaar/geolookup/pkg/geocode"
	"github.com/hazyhaar/geolookup/pkg/tabular"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"2022/ward.csv": "WD22CD,WD22NM,LAD22CD,LAD22NM\nW1,Ward one,L1,Lewisham\nW2,Ward two,L1,Lewisham\nW3,Ward three,L2,Southwark\n",
		"2022/lsoa.csv": "LSOA21CD,WD22CD\nS1,W1\nS2,W2\nS3,W3\n",
		"2022/oa.csv":   "OA21CD,LSOA21CD\nO1,S1\nO2,S1\nO3,S2\nO4,S3\n",
	}
	for name, body := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cat, err := catalog.BuildOrLoad(context.Background(), root, catalog.Options{})
	if err != nil {
		t.Fatal(err)
	}
	lookup := geocode.New(cat, tabular.NewLoader(&tabular.Reader{}), geocode.Options{LocalAuthorityConstraint: true})
	ts := httptest.NewServer(NewRouter(NewService(lookup, 0, nil)))
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, wantCode int, v any) http.Header {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: status = %d, want %d (%s)", url, resp.StatusCode, wantCode, body)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.Header
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t)

	var resp struct {
		Routes []struct {
			Route []geocode.Hop `json:"route"`
			Text  string        `json:"text"`
		} `json:"routes"`
	}
	h := getJSON(t, ts.URL+"/v1/routes?start=WD22CD&end=OA21CD&la=Lewisham", http.StatusOK, &resp)
	if len(resp.Routes) != 1 || resp.Routes[0].Text != "ward.csv -> lsoa.csv [WD22CD] -> oa.csv [LSOA21CD]" {
		t.Errorf("routes = %+v", resp.Routes)
	}
	if h.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	// Without local authorities the constraint is lifted.
	getJSON(t, ts.URL+"/v1/routes?start=WD22CD&end=OA21CD", http.StatusOK, &resp)
	if len(resp.Routes) != 1 || resp.Routes[0].Text != "lsoa.csv -> oa.csv [LSOA21CD]" {
		t.Errorf("unconstrained routes = %+v", resp.Routes)
	}
}

func TestRoutes_Errors(t *testing.T) {
	ts := newTestServer(t)
	getJSON(t, ts.URL+"/v1/routes?start=WD22CD", http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/v1/routes?start=MSOA21CD&end=OA21CD", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/v1/geocodes?start=WD22CD&end=OA21CD&routes=x", http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/v1/geocodes?start=WD22CD&end=OA21CD&routes=500", http.StatusBadRequest, nil)
}

func TestGeocodes(t *testing.T) {
	ts := newTestServer(t)

	var resp struct {
		Results []struct {
			Table    tabular.Frame `json:"table"`
			Warnings []struct {
				Message string `json:"message"`
			} `json:"warnings"`
		} `json:"results"`
	}
	getJSON(t, ts.URL+"/v1/geocodes?start=WD22CD&end=OA21CD&la=Lewisham", http.StatusOK, &resp)
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d", len(resp.Results))
	}
	if got := resp.Results[0].Table.Len(); got != 3 {
		t.Errorf("rows = %d, want 3", got)
	}

	getJSON(t, ts.URL+"/v1/geocodes?start=WD22CD&end=OA21CD&la=Narnia", http.StatusOK, &resp)
	if len(resp.Results[0].Warnings) == 0 {
		t.Error("expected fallback warning")
	}
}

func TestGeocodes_CSV(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/geocodes?start=WD22CD&end=OA21CD&la=Lewisham&format=csv")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Errorf("content type = %s", resp.Header.Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 4 {
		t.Errorf("csv lines = %d, want header + 3", len(lines))
	}
	if resp.Header.Get("X-Route") == "" {
		t.Error("missing X-Route")
	}
}

func TestHelperEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var geos geographiesResponse
	getJSON(t, ts.URL+"/v1/geographies?collection=2022", http.StatusOK, &geos)
	if strings.Join(geos.Geographies, ",") != "LAD22CD,LSOA21CD,OA21CD,WD22CD" {
		t.Errorf("geographies = %v", geos.Geographies)
	}
	getJSON(t, ts.URL+"/v1/geographies?collection=1999", http.StatusNotFound, nil)

	var keys keysResponse
	getJSON(t, ts.URL+"/v1/geography-keys", http.StatusOK, &keys)
	if len(keys.Keys) == 0 || keys.Hint == "" {
		t.Errorf("keys = %+v", keys)
	}

	var cols collectionsResponse
	getJSON(t, ts.URL+"/v1/collections", http.StatusOK, &cols)
	if len(cols.Collections) != 1 || cols.Collections[0] != "2022" {
		t.Errorf("collections = %v", cols.Collections)
	}

	var health healthResponse
	getJSON(t, ts.URL+"/v1/health", http.StatusOK, &health)
	if health.Status != "ok" || health.Tables != 3 {
		t.Errorf("health = %+v", health)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/v1/routes", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestDecodeRoutesReq(t *testing.T) {
	got := decodeRoutesReq(map[string]any{
		"start":             "WD22CD",
		"end":               "OA21CD",
		"local_authorities": "Lewisham, Southwark",
	})
	if got.Start != "WD22CD" || got.End != "OA21CD" || len(got.LocalAuthorities) != 2 || got.LocalAuthorities[1] != "Southwark" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestServiceSwap(t *testing.T) {
	newLookup := func(collection string) *geocode.Lookup {
		root := t.TempDir()
		p := filepath.Join(root, collection, "oa.csv")
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("OA21CD,LSOA21CD\nO1,S1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		cat, err := catalog.Scan(context.Background(), root, catalog.Options{})
		if err != nil {
			t.Fatal(err)
		}
		return geocode.New(cat, tabular.NewLoader(&tabular.Reader{}), geocode.Options{})
	}

	svc := NewService(newLookup("2021"), 0, nil)
	ep := collectionsEndpoint(svc)

	resp, err := ep(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.(collectionsResponse).Collections; len(got) != 1 || got[0] != "2021" {
		t.Errorf("before swap = %v", got)
	}

	svc.Swap(newLookup("2022"))
	resp, err = ep(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.(collectionsResponse).Collections; len(got) != 1 || got[0] != "2022" {
		t.Errorf("after swap = %v", got)
	}
}
