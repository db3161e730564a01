package geohelper

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/hazyhaar/geolookup/pkg/catalog"
)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Root: "/lookups",
		Collections: []*catalog.Collection{
			{Name: "2011", Tables: []*catalog.LookupTable{
				{Name: "oa.csv", Collection: "2011", Columns: []string{"OA11CD", "LSOA11CD", "LSOA11NM"}, CodeColumns: []string{"OA11CD", "LSOA11CD"}},
			}},
			{Name: "2022", Tables: []*catalog.LookupTable{
				{Name: "ward.csv", Collection: "2022", Columns: []string{"WD22CD", "LAD22CD"}, CodeColumns: []string{"WD22CD", "LAD22CD"}},
				{Name: "lsoa.csv", Collection: "2022", Columns: []string{"LSOA11CD", "WD22CD"}, CodeColumns: []string{"LSOA11CD", "WD22CD"}},
			}},
		},
	}
}

func TestGeographyKeys(t *testing.T) {
	keys := GeographyKeys()
	if len(keys) != 32 {
		t.Errorf("keys = %d, want 32", len(keys))
	}
	if !slices.IsSortedFunc(keys, func(a, b GeographyKey) int {
		switch {
		case a.Prefix < b.Prefix:
			return -1
		case a.Prefix > b.Prefix:
			return 1
		}
		return 0
	}) {
		t.Error("keys are not sorted by prefix")
	}
	keys[0].Prefix = "mutated"
	if GeographyKeys()[0].Prefix != "BUA" {
		t.Error("GeographyKeys must return a copy")
	}
}

func TestCollections(t *testing.T) {
	h := New(testCatalog())
	if got := h.Collections(); !reflect.DeepEqual(got, []string{"2011", "2022"}) {
		t.Errorf("Collections = %v", got)
	}
}

func TestAvailableGeographies(t *testing.T) {
	h := New(testCatalog())

	got, err := h.AvailableGeographies("2022")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"LAD22CD", "LSOA11CD", "WD22CD"}; !reflect.DeepEqual(got, want) {
		t.Errorf("2022 = %v, want %v", got, want)
	}

	got, err = h.AvailableGeographies("")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"LAD22CD", "LSOA11CD", "OA11CD", "WD22CD"}; !reflect.DeepEqual(got, want) {
		t.Errorf("all = %v, want %v", got, want)
	}

	if _, err := h.AvailableGeographies("1999"); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("err = %v, want ErrUnknownCollection", err)
	}
}
