package catalog

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeLookup(t *testing.T, root, collection, name, content string) {
	t.Helper()
	dir := filepath.Join(root, collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixtureRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeLookup(t, root, "2022", "ward.csv",
		"OBJECTID,WD22CD,WD22NM,LAD22CD,LAD22NM\n1,W1,Ward one,L1,Lewisham\n2,W2,Ward two,L1,Lewisham\n3,W3,Ward three,L2,Southwark\n")
	writeLookup(t, root, "2022", "lsoa.csv", "LSOA21CD,WD22CD\nS1,W1\nS2,W2\nS3,W3\n")
	writeLookup(t, root, "2021", "oa.csv", "OA21CD,LSOA21CD\nO1,S1\nO2,S1\nO3,S2\nO4,S3\n")
	writeLookup(t, root, "2021", "readme.txt", "not a table")
	return root
}

func TestScan(t *testing.T) {
	root := fixtureRoot(t)

	cat, err := Scan(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := cat.CollectionNames(); !reflect.DeepEqual(got, []string{"2021", "2022"}) {
		t.Fatalf("collections = %v", got)
	}

	var keys []string
	for _, tbl := range cat.Tables() {
		keys = append(keys, tbl.Key())
	}
	want := []string{"2021/oa.csv", "2022/lsoa.csv", "2022/ward.csv"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("tables = %v, want %v (readme.txt skipped)", keys, want)
	}

	ward, ok := cat.Table("2022/ward.csv")
	if !ok {
		t.Fatal("ward.csv missing")
	}
	if !reflect.DeepEqual(ward.Columns, []string{"WD22CD", "WD22NM", "LAD22CD", "LAD22NM"}) {
		t.Errorf("columns = %v (OBJECTID must be dropped)", ward.Columns)
	}
	if !reflect.DeepEqual(ward.CodeColumns, []string{"WD22CD", "LAD22CD"}) {
		t.Errorf("code columns = %v", ward.CodeColumns)
	}
	if !reflect.DeepEqual(ward.CodeColumnCardinalities, []int{3, 2}) {
		t.Errorf("cardinalities = %v", ward.CodeColumnCardinalities)
	}
	if ward.MaxCardinality() != 3 {
		t.Errorf("MaxCardinality = %d, want 3", ward.MaxCardinality())
	}
	if got := cat.Path(ward); got != filepath.Join(root, "2022", "ward.csv") {
		t.Errorf("Path = %s", got)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	root := fixtureRoot(t)
	fresh, err := Scan(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	cachePath := filepath.Join(t.TempDir(), "index.json")
	if err := WriteCache(cachePath, fresh); err != nil {
		t.Fatalf("WriteCache: %v", err)
	}
	reloaded, err := ReadCache(cachePath, root)
	if err != nil {
		t.Fatalf("ReadCache: %v", err)
	}
	if !reflect.DeepEqual(fresh, reloaded) {
		t.Errorf("reloaded catalog differs from fresh scan")
	}
}

func TestBuildOrLoad_UsesCache(t *testing.T) {
	root := fixtureRoot(t)
	ctx := context.Background()

	first, err := BuildOrLoad(ctx, root, Options{})
	if err != nil {
		t.Fatalf("BuildOrLoad: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, DefaultCacheFile)); err != nil {
		t.Fatalf("cache not written: %v", err)
	}

	// A new table is invisible until the cache is invalidated.
	writeLookup(t, root, "2022", "extra.csv", "MSOA21CD\nM1\n")
	second, err := BuildOrLoad(ctx, root, Options{})
	if err != nil {
		t.Fatalf("BuildOrLoad cached: %v", err)
	}
	if len(second.Tables()) != len(first.Tables()) {
		t.Errorf("tables = %d, want %d from cache", len(second.Tables()), len(first.Tables()))
	}

	if err := Invalidate(root, Options{}); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	third, err := BuildOrLoad(ctx, root, Options{})
	if err != nil {
		t.Fatalf("BuildOrLoad rescan: %v", err)
	}
	if len(third.Tables()) != len(first.Tables())+1 {
		t.Errorf("tables = %d, want %d after rescan", len(third.Tables()), len(first.Tables())+1)
	}
}

func TestBuildOrLoad_MalformedCacheRescans(t *testing.T) {
	root := fixtureRoot(t)
	if err := os.WriteFile(filepath.Join(root, DefaultCacheFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := BuildOrLoad(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("BuildOrLoad: %v", err)
	}
	if len(cat.Tables()) != 3 {
		t.Errorf("tables = %d, want 3", len(cat.Tables()))
	}
}

func TestBuildOrLoad_UnwritableCache(t *testing.T) {
	root := fixtureRoot(t)
	// The cache path's parent is a regular file, so the write must fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	opts := Options{CacheFile: filepath.Join(blocker, "index.json")}

	cat, err := BuildOrLoad(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("BuildOrLoad should continue in memory: %v", err)
	}
	if len(cat.Tables()) != 3 {
		t.Errorf("tables = %d, want 3", len(cat.Tables()))
	}
}

func TestConvention(t *testing.T) {
	c := DefaultConvention()
	cases := []struct {
		col        string
		code, name bool
	}{
		{"LAD22CD", true, false},
		{"LAD22NM", false, true},
		{"utla21nm", false, true},
		{"WD22NM", false, false},
		{"OA21CD", true, false},
	}
	for _, tc := range cases {
		if got := c.IsCodeColumn(tc.col); got != tc.code {
			t.Errorf("IsCodeColumn(%s) = %v, want %v", tc.col, got, tc.code)
		}
		if got := c.IsLocalAuthorityName(tc.col); got != tc.name {
			t.Errorf("IsLocalAuthorityName(%s) = %v, want %v", tc.col, got, tc.name)
		}
	}

	custom := Convention{CodeColumn: func(col string) bool { return strings.HasPrefix(col, "KEY_") }}.WithDefaults()
	if !custom.IsCodeColumn("KEY_ZONE") || custom.IsCodeColumn("OA21CD") {
		t.Error("CodeColumn predicate should replace the suffix test")
	}
}
