package api

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/hazyhaar/geolookup/pkg/catalog"
	"github.com/hazyhaar/geolookup/pkg/geocode"
	"github.com/hazyhaar/geolookup/pkg/tabular"
	"github.com/mark3labs/mcp-go/server"
)

func newTestMCPServer(t *testing.T) *server.MCPServer {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "2022")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"ward.csv": "WD22CD,WD22NM,LAD22CD,LAD22NM\nW1,Ward one,L1,Lewisham\nW3,Ward three,L2,Southwark\n",
		"oa.csv":   "OA21CD,WD22CD\nO1,W1\nO2,W3\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cat, err := catalog.Scan(context.Background(), root, catalog.Options{})
	if err != nil {
		t.Fatal(err)
	}
	lookup := geocode.New(cat, tabular.NewLoader(&tabular.Reader{}), geocode.Options{LocalAuthorityConstraint: true})

	srv := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterMCPTools(srv, NewService(lookup, 0, nil))
	return srv
}

// rpc sends one JSON-RPC message and decodes the "result" member into v.
func rpc(t *testing.T, srv *server.MCPServer, msg string, v any) {
	t.Helper()
	resp := srv.HandleMessage(context.Background(), []byte(msg))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error != nil {
		t.Fatalf("rpc error: %s", envelope.Error.Message)
	}
	if err := json.Unmarshal(envelope.Result, v); err != nil {
		t.Fatalf("decode result: %v (%s)", err, envelope.Result)
	}
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]any) toolResult {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	if err != nil {
		t.Fatal(err)
	}
	var res toolResult
	rpc(t, srv, string(msg), &res)
	if len(res.Content) == 0 {
		t.Fatalf("%s: empty content", name)
	}
	return res
}

func TestMCPToolsList(t *testing.T) {
	srv := newTestMCPServer(t)

	var res struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	rpc(t, srv, `{"jsonrpc":"2.0","method":"tools/list","id":1}`, &res)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	want := []string{"available_geographies", "filtered_geocodes", "find_routes", "geography_keys", "list_collections"}
	if !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestMCPFindRoutes(t *testing.T) {
	srv := newTestMCPServer(t)

	res := callTool(t, srv, "find_routes", map[string]any{"start": "WD22CD", "end": "OA21CD", "local_authorities": "Lewisham"})
	if res.IsError {
		t.Fatalf("tool error: %s", res.Content[0].Text)
	}
	var routes routesResponse
	if err := json.Unmarshal([]byte(res.Content[0].Text), &routes); err != nil {
		t.Fatal(err)
	}
	if len(routes.Routes) != 1 || routes.Routes[0].Text != "ward.csv -> oa.csv [WD22CD]" {
		t.Errorf("routes = %+v", routes.Routes)
	}

	res = callTool(t, srv, "find_routes", map[string]any{"start": "MSOA21CD", "end": "OA21CD"})
	if !res.IsError || !strings.Contains(res.Content[0].Text, "starting column") {
		t.Errorf("expected start-table error, got %+v", res)
	}
}

func TestMCPFilteredGeocodes(t *testing.T) {
	srv := newTestMCPServer(t)

	res := callTool(t, srv, "filtered_geocodes", map[string]any{
		"start":             "WD22CD",
		"end":               "OA21CD",
		"local_authorities": []any{"Southwark"},
		"routes":            1.0,
	})
	if res.IsError {
		t.Fatalf("tool error: %s", res.Content[0].Text)
	}
	var out struct {
		Results []struct {
			Table tabular.Frame `json:"table"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(res.Content[0].Text), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("results = %d", len(out.Results))
	}
	if got := out.Results[0].Table.Unique("OA21CD"); !slices.Equal(got, []string{"O2"}) {
		t.Errorf("OA21CD = %v, want [O2]", got)
	}
}
