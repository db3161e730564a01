package geocode

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuildGraph_ParallelEdges(t *testing.T) {
	cat := buildCatalog(t,
		lookupFile{"c", "a.csv", "AACD,BBCD,NOTE\n1,2,x\n"},
		lookupFile{"c", "b.csv", "AACD,BBCD,CCCD\n1,2,3\n"},
		lookupFile{"c", "z.csv", "CCCD\n3\n"},
	)
	g := BuildGraph(cat)

	if got := g.EdgesBetween("c/a.csv", "c/b.csv"); !reflect.DeepEqual(got, []string{"AACD", "BBCD"}) {
		t.Errorf("a->b edges = %v", got)
	}
	if got := g.EdgesBetween("c/b.csv", "c/a.csv"); !reflect.DeepEqual(got, []string{"AACD", "BBCD"}) {
		t.Errorf("b->a edges = %v", got)
	}
	if got := g.EdgesBetween("c/a.csv", "c/z.csv"); len(got) != 0 {
		t.Errorf("a and z share no code column, got %v", got)
	}
	want := []Edge{{"c/a.csv", "AACD"}, {"c/a.csv", "BBCD"}, {"c/z.csv", "CCCD"}}
	if got := g.Neighbours("c/b.csv"); !reflect.DeepEqual(got, want) {
		t.Errorf("Neighbours(b) = %v, want %v", got, want)
	}
}

func TestResolve_SingleTable(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	r := &Resolver{}
	routes, err := r.Resolve(BuildGraph(cat), PathQuery{StartingColumn: "WD22CD", EndingColumn: "LAD22CD"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(routes) != 1 || len(routes[0]) != 1 || routes[0][0].Table != "ward.csv" {
		t.Fatalf("routes = %v, want the ward table alone", routes)
	}
}

func TestResolve_OnlyMinimalRoutes(t *testing.T) {
	cat := buildCatalog(t,
		lookupFile{"c", "a.csv", "STARTCD,MIDCD\n1,2\n"},
		lookupFile{"c", "b.csv", "MIDCD,ENDCD\n2,3\n"},
		lookupFile{"c", "c.csv", "STARTCD,XCD\n1,9\n"},
		lookupFile{"c", "d.csv", "XCD,YCD\n9,8\n"},
		lookupFile{"c", "e.csv", "YCD,ENDCD\n8,3\n"},
	)
	routes, err := (&Resolver{}).Resolve(BuildGraph(cat), PathQuery{StartingColumn: "STARTCD", EndingColumn: "ENDCD"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, rt := range routes {
		if len(rt) != 2 {
			t.Errorf("route %s has %d tables, want 2", rt, len(rt))
		}
	}
	if len(routes) == 0 || routes[0].String() != "a.csv -> b.csv [MIDCD]" {
		t.Errorf("routes = %v", routes)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	q := PathQuery{StartingColumn: "WD22CD", EndingColumn: "OA21CD"}
	r := &Resolver{}
	first, err := r.Resolve(BuildGraph(cat), q)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Resolve(BuildGraph(cat), q)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d: %v != %v", i, again, first)
		}
	}
}

func TestResolve_Errors(t *testing.T) {
	cat := buildCatalog(t, append(scenarioFiles,
		lookupFile{"other", "island.csv", "ZZ21CD,QQ21CD\n1,2\n"},
	)...)
	g := BuildGraph(cat)
	r := &Resolver{}

	tests := []struct {
		name string
		q    PathQuery
		want error
	}{
		{"empty", PathQuery{}, ErrInvalidQuery},
		{"no start", PathQuery{StartingColumn: "MSOA21CD", EndingColumn: "OA21CD"}, ErrNoStartTable},
		{"no end", PathQuery{StartingColumn: "WD22CD", EndingColumn: "MSOA21CD"}, ErrNoEndTable},
		{"disconnected", PathQuery{StartingColumn: "ZZ21CD", EndingColumn: "OA21CD"}, ErrNoConnectingPath},
		{"no la start", PathQuery{StartingColumn: "LSOA21CD", EndingColumn: "OA21CD", RequireLocalAuthorityStart: true}, ErrNoStartTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(g, tt.q)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEndTables_MaxCardinality(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	g := BuildGraph(cat)
	r := &Resolver{}

	names := func(q PathQuery) []string {
		var out []string
		for _, tbl := range r.EndTables(g, q) {
			out = append(out, tbl.Name)
		}
		return out
	}
	if got := names(PathQuery{EndingColumn: "LSOA21CD"}); !reflect.DeepEqual(got, []string{"lsoa.csv", "oa.csv"}) {
		t.Errorf("end tables = %v", got)
	}
	// oa.csv holds the widest code column (4 distinct OA21CD values).
	if got := names(PathQuery{EndingColumn: "LSOA21CD", UseMaxCardinalityEndSearch: true}); !reflect.DeepEqual(got, []string{"oa.csv"}) {
		t.Errorf("end tables with max cardinality = %v", got)
	}
}

func TestResolve_AllJoinColumns(t *testing.T) {
	cat := buildCatalog(t,
		lookupFile{"c", "p.csv", "STARTCD,AACD,BBCD\n1,2,3\n"},
		lookupFile{"c", "q.csv", "AACD,BBCD,ENDCD\n2,3,4\n"},
	)
	g := BuildGraph(cat)
	q := PathQuery{StartingColumn: "STARTCD", EndingColumn: "ENDCD"}

	routes, err := (&Resolver{}).Resolve(g, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 || routes[0].String() != "p.csv -> q.csv [AACD]" {
		t.Fatalf("routes = %v", routes)
	}

	routes, err = (&Resolver{AllJoinColumns: true}).Resolve(g, q)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, rt := range routes {
		got = append(got, rt.String())
	}
	want := []string{"p.csv -> q.csv [AACD]", "p.csv -> q.csv [BBCD]"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("routes = %v, want %v", got, want)
	}
}

func TestRoute_Validate(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	good := Route{
		{Table: "ward.csv", Collection: "2022"},
		{Table: "lsoa.csv", Collection: "2022", Column: "WD22CD"},
	}
	if err := good.Validate(cat); err != nil {
		t.Errorf("Validate: %v", err)
	}
	bad := Route{
		{Table: "ward.csv", Collection: "2022"},
		{Table: "oa.csv", Collection: "2022", Column: "WD22CD"},
	}
	if err := bad.Validate(cat); err == nil {
		t.Error("expected error for a column missing from oa.csv")
	}
	missing := Route{{Table: "nope.csv", Collection: "2022"}}
	if err := missing.Validate(cat); err == nil {
		t.Error("expected error for unknown table")
	}
	if err := (Route{}).Validate(cat); err == nil {
		t.Error("expected error for empty route")
	}
}

func TestRoute_Describe(t *testing.T) {
	rt := Route{
		{Table: "ward.csv", Collection: "2022"},
		{Table: "lsoa.csv", Collection: "2022", Column: "WD22CD"},
	}
	want := "Starting table: ward.csv (2022)\n  joined to lsoa.csv (2022) via WD22CD\n"
	if got := rt.Describe(); got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
}
