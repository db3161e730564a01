// CLAUDE:SUMMARY Read-only helper over the catalog: geography prefix descriptions, available code columns per collection, collection list.
package geohelper

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hazyhaar/geolookup/pkg/catalog"
)

// ErrUnknownCollection is returned when a collection/year is not in the catalog.
var ErrUnknownCollection = errors.New("unknown collection")

// Hint explains how to compose a code column from a geography prefix.
const Hint = "Add a two-digit year (e.g. 11 for 2011) and CD to a geography prefix to build a code column. " +
	"For example WD22CD as the starting column and WD11CD as the ending column gives the 2022 to 2011 ward lookup."

// GeographyKey is a recognised geography-code prefix.
type GeographyKey struct {
	Prefix      string `json:"prefix"`
	Description string `json:"description"`
}

var geographyKeys = []GeographyKey{
	{"BUA", "Built-up area"},
	{"BUASD", "Built-up area sub-divisions"},
	{"CAUTH", "Combined authority"},
	{"CCG", "Clinical commissioning group"},
	{"CED", "County electoral division"},
	{"CMWD", "Census-merged wards"},
	{"CTRY", "Country"},
	{"CTY", "County"},
	{"EER", "European electoral region"},
	{"LAD", "Local authority district"},
	{"LAU1", "Local administrative unit 1 (Eurostat)"},
	{"LAU2", "Local administrative unit 2 (Eurostat)"},
	{"LPA", "Local planning authority"},
	{"LSOA", "Lower layer super output area"},
	{"LTLA", "Lower-tier local authority"},
	{"MSOA", "Middle layer super output area"},
	{"NAT", "Nations"},
	{"NHSER", "NHS England region"},
	{"NUTS1", "Nomenclature of territorial units for statistics level 1 (Eurostat)"},
	{"NUTS2", "Nomenclature of territorial units for statistics level 2 (Eurostat)"},
	{"NUTS3", "Nomenclature of territorial units for statistics level 3 (Eurostat)"},
	{"OA", "Output area"},
	{"PCO", "Primary care organisation"},
	{"PCON", "Westminster parliamentary constituency"},
	{"RGN", "Region"},
	{"SHA", "Strategic health authority"},
	{"STP", "Sustainability and transformation partnerships"},
	{"TTWA", "Travel to work area"},
	{"UA", "Unitary authority"},
	{"UTLA", "Upper-tier local authority"},
	{"WD", "Ward"},
	{"WZ", "Workplace zone"},
}

// GeographyKeys returns the static prefix table, sorted by prefix.
func GeographyKeys() []GeographyKey {
	return slices.Clone(geographyKeys)
}

// Helper answers discovery questions about a catalog.
type Helper struct {
	cat *catalog.Catalog
}

// New wraps a catalog. The catalog is not modified.
func New(cat *catalog.Catalog) *Helper {
	return &Helper{cat: cat}
}

// Collections lists the collection/year identifiers.
func (h *Helper) Collections() []string {
	return h.cat.CollectionNames()
}

// AvailableGeographies returns the sorted distinct code columns of one
// collection, or of every collection when collection is empty.
func (h *Helper) AvailableGeographies(collection string) ([]string, error) {
	var cols []*catalog.Collection
	if collection == "" {
		cols = h.cat.Collections
	} else {
		c, ok := h.cat.Collection(collection)
		if !ok {
			return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownCollection, collection, h.Collections())
		}
		cols = []*catalog.Collection{c}
	}

	out := []string{}
	for _, c := range cols {
		for _, t := range c.Tables {
			out = append(out, t.CodeColumns...)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
