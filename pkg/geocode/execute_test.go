package geocode

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hazyhaar/geolookup/pkg/catalog"
	"github.com/hazyhaar/geolookup/pkg/tabular"
)

func newExecutor(cat *catalog.Catalog) *Executor {
	return &Executor{
		Catalog: cat,
		Loader:  tabular.NewLoader(&tabular.Reader{}),
	}
}

func TestExecute_JoinChainKeepsLeftRows(t *testing.T) {
	cat := buildCatalog(t,
		lookupFile{"c", "a.csv", "ID,X\n1,x1\n2,x2\n3,x3\n"},
		lookupFile{"c", "b.csv", "ID,Y\n1,y1\n2,y2\n"},
		lookupFile{"c", "c.csv", "Y,Z\ny1,z1\ny2,z2\n"},
	)
	rt := Route{
		{Table: "a.csv", Collection: "c"},
		{Table: "b.csv", Collection: "c", Column: "ID"},
		{Table: "c.csv", Collection: "c", Column: "Y"},
	}
	res, err := newExecutor(cat).Execute(context.Background(), rt, nil, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Table.Len() != 3 {
		t.Errorf("rows = %d, want 3", res.Table.Len())
	}
	if want := []string{"ID", "X", "Y", "Z"}; !reflect.DeepEqual(res.Table.Columns, want) {
		t.Errorf("columns = %v, want %v", res.Table.Columns, want)
	}
	if got := res.Table.Column("Z"); !reflect.DeepEqual(got, []string{"z1", "z2", ""}) {
		t.Errorf("Z = %v", got)
	}
}

func TestExecute_DropsNullColumnsAndDuplicates(t *testing.T) {
	cat := buildCatalog(t,
		lookupFile{"c", "a.csv", "ID,EMPTY\n1,\n1,\n2,\n"},
		lookupFile{"c", "b.csv", "ID,V\n1,v\n"},
	)
	rt := Route{
		{Table: "a.csv", Collection: "c"},
		{Table: "b.csv", Collection: "c", Column: "ID"},
	}
	res, err := newExecutor(cat).Execute(context.Background(), rt, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"ID", "V"}; !reflect.DeepEqual(res.Table.Columns, want) {
		t.Errorf("columns = %v, want %v", res.Table.Columns, want)
	}
	if res.Table.Len() != 2 {
		t.Errorf("rows = %d, want 2 after dedupe", res.Table.Len())
	}
}

func TestExecute_LocalAuthorityFallback(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	rt := Route{
		{Table: "ward.csv", Collection: "2022"},
		{Table: "lsoa.csv", Collection: "2022", Column: "WD22CD"},
		{Table: "oa.csv", Collection: "2022", Column: "LSOA21CD"},
	}
	res, err := newExecutor(cat).Execute(context.Background(), rt, []string{"Narnia"}, true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Table.Len() != 4 {
		t.Errorf("rows = %d, want the unfiltered 4", res.Table.Len())
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a warning")
	}
	for _, w := range res.Warnings {
		if !errors.Is(w, ErrLocalAuthorityNotFound) {
			t.Errorf("warning %v is not ErrLocalAuthorityNotFound", w)
		}
	}
}

func TestExecute_NoLocalAuthorityColumn(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	rt := Route{{Table: "lsoa.csv", Collection: "2022"}}
	res, err := newExecutor(cat).Execute(context.Background(), rt, []string{"Lewisham"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Table.Len() != 3 {
		t.Errorf("rows = %d, want 3", res.Table.Len())
	}
	if len(res.Warnings) != 1 || !errors.Is(res.Warnings[0], ErrNoLocalAuthorityColumn) {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestExecute_UnconstrainedIgnoresLocalAuthorities(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	rt := Route{{Table: "ward.csv", Collection: "2022"}}
	res, err := newExecutor(cat).Execute(context.Background(), rt, []string{"Lewisham"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Table.Len() != 3 || len(res.Warnings) != 0 {
		t.Errorf("rows = %d warnings = %v", res.Table.Len(), res.Warnings)
	}
}

func TestExecute_NormalizedNames(t *testing.T) {
	cat := buildCatalog(t,
		lookupFile{"c", "wales.csv", "LAD22CD,LAD22NM\nW1,Ynys Môn\nW2,Cardiff\n"},
	)
	rt := Route{{Table: "wales.csv", Collection: "c"}}

	exec := newExecutor(cat)
	res, err := exec.Execute(context.Background(), rt, []string{"ynys mon"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("exact matching should miss, warnings = %v", res.Warnings)
	}

	exec.NormalizeNames = true
	res, err = exec.Execute(context.Background(), rt, []string{"ynys mon"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Table.Len() != 1 || len(res.Warnings) != 0 {
		t.Errorf("rows = %d warnings = %v", res.Table.Len(), res.Warnings)
	}
}

func TestExecute_EmptyRoute(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	_, err := newExecutor(cat).Execute(context.Background(), nil, nil, false)
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestExecute_RejectsRouteOutsideCatalog(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	rt := Route{
		{Table: "ward.csv", Collection: "2022"},
		{Table: "oa.csv", Collection: "2022", Column: "WD22CD"},
	}
	_, err := newExecutor(cat).Execute(context.Background(), rt, nil, false)
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestExecute_JoinedTableFilteredWithoutConstraint(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	rt := Route{
		{Table: "ward.csv", Collection: "2022"},
		{Table: "lsoa.csv", Collection: "2022", Column: "WD22CD"},
		{Table: "oa.csv", Collection: "2022", Column: "LSOA21CD"},
	}
	res, err := newExecutor(cat).Execute(context.Background(), rt, []string{"Southwark"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Table.Column("OA21CD"); !reflect.DeepEqual(got, []string{"O4"}) {
		t.Errorf("OA21CD = %v, want [O4]", got)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v", res.Warnings)
	}

	res, err = newExecutor(cat).Execute(context.Background(), rt, []string{"Narnia"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Table.Len() != 4 || len(res.Warnings) != 1 || !errors.Is(res.Warnings[0], ErrLocalAuthorityNotFound) {
		t.Errorf("rows = %d warnings = %v", res.Table.Len(), res.Warnings)
	}
}

func TestExecute_ResultsOwnTheirRows(t *testing.T) {
	cat := buildCatalog(t, scenarioFiles...)
	exec := newExecutor(cat)
	ctx := context.Background()
	single := Route{{Table: "ward.csv", Collection: "2022"}}

	res, err := exec.Execute(ctx, single, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	want := res.Table.Clone()
	res.Table.Rows[0][1] = "changed"
	res.Table.Rows = res.Table.Rows[:1]

	again, err := exec.Execute(ctx, single, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again.Table, want) {
		t.Errorf("second execution = %v, want %v", again.Table.Rows, want.Rows)
	}

	filtered, err := exec.Execute(ctx, single, []string{"Lewisham"}, true)
	if err != nil {
		t.Fatal(err)
	}
	filtered.Table.Rows[0][0] = "changed"

	again, err = exec.Execute(ctx, single, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again.Table, want) {
		t.Errorf("after editing a filtered result = %v, want %v", again.Table.Rows, want.Rows)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"Ynys Môn ":         "ynys mon",
		"LEWISHAM":          "lewisham",
		"Rhondda Cynon Taf": "rhondda cynon taf",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
