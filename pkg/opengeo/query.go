package opengeo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hazyhaar/geolookup/pkg/tabular"
)

// Query selects features of a feature service.
type Query struct {
	// Where is an SQL filter (default "1=1").
	Where string
	// OutFields lists the returned fields (default all).
	OutFields []string
	// Limit caps the number of rows; 0 means no cap.
	Limit int
	// AllLinks queries every layer and table instead of only the first.
	AllLinks bool
	// Drop removes columns from the result, e.g. OBJECTID.
	Drop []string
}

func (q Query) where() string {
	if strings.TrimSpace(q.Where) == "" {
		return "1=1"
	}
	return q.Where
}

func (q Query) outFields() string {
	if len(q.OutFields) == 0 {
		return "*"
	}
	return strings.Join(q.OutFields, ",")
}

// Count returns how many features of layer id match where.
func (c *Client) Count(ctx context.Context, d *Details, id int, where string) (int, error) {
	if strings.TrimSpace(where) == "" {
		where = "1=1"
	}
	var doc struct {
		Count int `json:"count"`
	}
	params := map[string][]string{
		"where":           {where},
		"returnCountOnly": {"true"},
	}
	if err := c.getJSON(ctx, layerQueryURL(d, id), params, &doc); err != nil {
		return 0, fmt.Errorf("count %s layer %d: %w", d.Name, id, err)
	}
	return doc.Count, nil
}

func layerQueryURL(d *Details, id int) string {
	return fmt.Sprintf("%s/%d/query", d.URL, id)
}

type featurePage struct {
	Fields   []Field `json:"fields"`
	Features []struct {
		Attributes map[string]any `json:"attributes"`
	} `json:"features"`
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
}

// Query downloads the matching features as a table. Pages are requested by
// resultOffset until the server's count is reached or a page comes back
// empty. Column names are upper-cased like every lookup table.
func (c *Client) Query(ctx context.Context, d *Details, q Query) (*tabular.Frame, error) {
	links := d.Links()
	if len(links) == 0 {
		return nil, fmt.Errorf("%s has no layers or tables to query", d.Name)
	}
	if !q.AllLinks {
		links = links[:1]
	}

	var out *tabular.Frame
	for _, link := range links {
		f, err := c.queryLayer(ctx, d, link.ID, q)
		if err != nil {
			return nil, err
		}
		out = appendFrame(out, f)
		if q.Limit > 0 && out.Len() >= q.Limit {
			out.Rows = out.Rows[:q.Limit]
			break
		}
	}
	if len(q.Drop) > 0 {
		out = out.DropColumns(q.Drop...)
	}
	return out, nil
}

func (c *Client) queryLayer(ctx context.Context, d *Details, id int, q Query) (*tabular.Frame, error) {
	total, err := c.Count(ctx, d, id, q.where())
	if err != nil {
		return nil, err
	}
	want := total
	if q.Limit > 0 && q.Limit < want {
		want = q.Limit
	}
	c.logger.Info("open geography query", "service", d.Name, "layer", id, "where", q.where(), "count", total)

	u := layerQueryURL(d, id)
	var columns []string
	var records []map[string]any
	for len(records) < want {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		size := c.pageSize
		if rest := want - len(records); rest < size {
			size = rest
		}
		params := map[string][]string{
			"where":             {q.where()},
			"outFields":         {q.outFields()},
			"resultOffset":      {strconv.Itoa(len(records))},
			"resultRecordCount": {strconv.Itoa(size)},
		}
		if d.PrimaryKey != "" {
			params["orderByFields"] = []string{d.PrimaryKey}
		}
		var page featurePage
		if err := c.getJSON(ctx, u, params, &page); err != nil {
			return nil, fmt.Errorf("query %s layer %d: %w", d.Name, id, err)
		}
		if columns == nil {
			columns = pageColumns(page)
		}
		if len(page.Features) == 0 {
			break
		}
		for _, f := range page.Features {
			records = append(records, f.Attributes)
		}
		c.logger.Debug("open geography page", "service", d.Name, "layer", id, "rows", len(records), "of", want)
	}
	if len(records) > want {
		records = records[:want]
	}
	if columns == nil {
		columns = d.FieldNames()
	}
	return toFrame(columns, records), nil
}

// pageColumns takes the column order from the page's field list, falling
// back to the sorted attribute names of its first feature.
func pageColumns(p featurePage) []string {
	if len(p.Fields) > 0 {
		cols := make([]string, len(p.Fields))
		for i, f := range p.Fields {
			cols[i] = f.Name
		}
		return cols
	}
	if len(p.Features) == 0 {
		return nil
	}
	var cols []string
	for k := range p.Features[0].Attributes {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func toFrame(columns []string, records []map[string]any) *tabular.Frame {
	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(columns))
		for j, col := range columns {
			row[j] = cell(rec[col])
		}
		rows[i] = row
	}
	upper := make([]string, len(columns))
	for i, c := range columns {
		upper[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	return tabular.NewFrame(upper, rows)
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// appendFrame stacks f under acc, aligning columns by name. Columns missing
// on either side are left empty.
func appendFrame(acc, f *tabular.Frame) *tabular.Frame {
	if acc == nil {
		return f
	}
	cols := append([]string(nil), acc.Columns...)
	for _, c := range f.Columns {
		if !acc.Has(c) {
			cols = append(cols, c)
		}
	}
	rows := make([][]string, 0, acc.Len()+f.Len())
	for _, src := range []*tabular.Frame{acc, f} {
		idx := make([]int, len(cols))
		for j, c := range cols {
			idx[j] = src.Index(c)
		}
		for _, r := range src.Rows {
			row := make([]string, len(cols))
			for j, i := range idx {
				if i >= 0 {
					row[j] = r[i]
				}
			}
			rows = append(rows, row)
		}
	}
	return tabular.NewFrame(cols, rows)
}
