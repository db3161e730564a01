package tabular

import (
	"bytes"
	"reflect"
	"testing"
)

func TestLeftJoin_PreservesLeftRows(t *testing.T) {
	a := NewFrame([]string{"ID", "X"}, [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}})
	b := NewFrame([]string{"ID", "Y"}, [][]string{{"1", "p"}, {"2", "q"}})

	got, err := a.LeftJoin(b, "id")
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}
	if !reflect.DeepEqual(got.Columns, []string{"ID", "X", "Y"}) {
		t.Fatalf("columns = %v", got.Columns)
	}
	want := [][]string{{"1", "a", "p"}, {"2", "b", "q"}, {"3", "c", ""}}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("rows = %v, want %v", got.Rows, want)
	}
}

func TestLeftJoin_KeepsLeftDuplicateColumn(t *testing.T) {
	a := NewFrame([]string{"K", "NAME"}, [][]string{{"1", "left"}})
	b := NewFrame([]string{"K", "NAME", "EXTRA"}, [][]string{{"1", "right", "e"}})

	got, err := a.LeftJoin(b, "K")
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}
	if !reflect.DeepEqual(got.Columns, []string{"K", "NAME", "EXTRA"}) {
		t.Fatalf("columns = %v", got.Columns)
	}
	if got.Rows[0][1] != "left" {
		t.Errorf("NAME = %q, want left copy", got.Rows[0][1])
	}
}

func TestLeftJoin_ExpandsMultipleMatches(t *testing.T) {
	a := NewFrame([]string{"K"}, [][]string{{"1"}, {""}})
	b := NewFrame([]string{"K", "V"}, [][]string{{"1", "x"}, {"1", "y"}, {"", "null"}})

	got, err := a.LeftJoin(b, "K")
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}
	want := [][]string{{"1", "x"}, {"1", "y"}, {"", ""}}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("rows = %v, want %v", got.Rows, want)
	}
}

func TestLeftJoin_MissingColumn(t *testing.T) {
	a := NewFrame([]string{"A"}, nil)
	b := NewFrame([]string{"B"}, nil)
	if _, err := a.LeftJoin(b, "A"); err == nil {
		t.Error("expected error when right side lacks the join column")
	}
	if _, err := a.LeftJoin(b, "B"); err == nil {
		t.Error("expected error when left side lacks the join column")
	}
}

func TestDropNullColumnsAndDuplicates(t *testing.T) {
	f := NewFrame([]string{"A", "EMPTY", "B"}, [][]string{
		{"1", "", "x"},
		{"1", "", "x"},
		{"2", "", "y"},
	})
	got := f.DropNullColumns().DropDuplicates()
	if !reflect.DeepEqual(got.Columns, []string{"A", "B"}) {
		t.Errorf("columns = %v", got.Columns)
	}
	if got.Len() != 2 {
		t.Errorf("rows = %d, want 2", got.Len())
	}
}

func TestFilterIn(t *testing.T) {
	f := NewFrame([]string{"LAD22NM"}, [][]string{{"Lewisham"}, {"Southwark"}, {"Lewisham"}})
	got, err := f.FilterIn("lad22nm", []string{"Lewisham"})
	if err != nil {
		t.Fatalf("FilterIn: %v", err)
	}
	if got.Len() != 2 {
		t.Errorf("rows = %d, want 2", got.Len())
	}
	if _, err := f.FilterIn("NOPE", nil); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestOperationsDoNotShareRows(t *testing.T) {
	rows := [][]string{{"Lewisham", "L1"}, {"Southwark", "L2"}}
	f := NewFrame([]string{"LAD22NM", "LAD22CD"}, rows)
	rows[0][0] = "changed"
	if f.Rows[0][0] != "Lewisham" {
		t.Fatal("NewFrame kept the caller's rows")
	}

	filtered, err := f.FilterIn("LAD22NM", []string{"Lewisham"})
	if err != nil {
		t.Fatal(err)
	}
	out := []*Frame{
		f.Clone(),
		filtered,
		f.DropDuplicates(),
		f.DropNullColumns(),
		f.DropColumns("NOPE"),
	}
	for i, g := range out {
		if g == f {
			t.Fatalf("op %d returned the receiver", i)
		}
		g.Rows[0][0] = "changed"
		g.Columns[0] = "CHANGED"
	}
	if f.Rows[0][0] != "Lewisham" || f.Columns[0] != "LAD22NM" {
		t.Errorf("receiver modified: %v %v", f.Columns, f.Rows)
	}
}

func TestDropColumns(t *testing.T) {
	f := NewFrame([]string{"OBJECTID", "OA21CD"}, [][]string{{"1", "E1"}})
	got := f.DropColumns("objectid")
	if !reflect.DeepEqual(got.Columns, []string{"OA21CD"}) || !reflect.DeepEqual(got.Rows, [][]string{{"E1"}}) {
		t.Errorf("DropColumns = %v %v", got.Columns, got.Rows)
	}
}

func TestUnique(t *testing.T) {
	f := NewFrame([]string{"OA21CD"}, [][]string{{"E1"}, {""}, {"E2"}, {"E1"}})
	if got := f.Unique("OA21CD"); !reflect.DeepEqual(got, []string{"E1", "E2"}) {
		t.Errorf("Unique = %v", got)
	}
}

func TestWriteCSV(t *testing.T) {
	f := NewFrame([]string{"A", "B"}, [][]string{{"1", "x,y"}})
	var buf bytes.Buffer
	if err := f.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "A,B\n1,\"x,y\"\n"
	if buf.String() != want {
		t.Errorf("csv = %q, want %q", buf.String(), want)
	}
}
