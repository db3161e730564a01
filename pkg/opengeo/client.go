// CLAUDE:SUMMARY ArcGIS REST client for the ONS Open Geography Portal: service catalogue, feature-server metadata and the services lookup table.
package opengeo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/geolookup/pkg/sources"
	"github.com/hazyhaar/geolookup/pkg/tabular"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the services root of the Open Geography Portal.
const DefaultBaseURL = "https://services1.arcgis.com/ESMARspQHYMw9BZ9/arcgis/rest/services"

// DefaultPageSize is the page size requested when Config.PageSize is unset.
// Servers may return fewer rows per page; pagination follows what they send.
const DefaultPageSize = 2000

var (
	ErrServiceNotFound  = errors.New("service not found")
	ErrNotFeatureServer = errors.New("service has no feature server")
)

// ServerType is the ArcGIS server kind a service is published with.
type ServerType string

const (
	FeatureServer ServerType = "FeatureServer"
	MapServer     ServerType = "MapServer"
	WFSServer     ServerType = "WFSServer"
)

// ParseServerType maps "feature", "map" or "wfs" (or a full type name) to a
// ServerType. Empty means feature.
func ParseServerType(s string) (ServerType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "feature", "featureserver":
		return FeatureServer, nil
	case "map", "mapserver":
		return MapServer, nil
	case "wfs", "wfsserver":
		return WFSServer, nil
	}
	return "", fmt.Errorf("unknown server type %q (want feature, map or wfs)", s)
}

// Config configures a Client.
type Config struct {
	BaseURL  string `yaml:"base_url"`
	PageSize int    `yaml:"page_size"`
	// Attempts and Backoff tune request retries (see sources.Downloader).
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

// Client talks to an ArcGIS REST services root.
type Client struct {
	baseURL    string
	pageSize   int
	downloader *sources.Downloader
	logger     *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{
		baseURL:  base,
		pageSize: pageSize,
		downloader: &sources.Downloader{
			Client:   &http.Client{Timeout: 5 * time.Minute},
			Attempts: cfg.Attempts,
			Backoff:  cfg.Backoff,
		},
		logger: logger,
	}
}

// Service is one entry of the services catalogue.
type Service struct {
	Name string     `json:"name"`
	Type ServerType `json:"type"`
	URL  string     `json:"url"`
}

// Layer is a layer or table of a service.
type Layer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Field describes one attribute of a layer.
type Field struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Alias string `json:"alias,omitempty"`
}

// Details is a service with its layer metadata.
type Details struct {
	Service
	Description   string   `json:"description,omitempty"`
	Layers        []Layer  `json:"layers,omitempty"`
	Tables        []Layer  `json:"tables,omitempty"`
	OutputFormats []string `json:"output_formats,omitempty"`
	Fields        []Field  `json:"fields,omitempty"`
	PrimaryKey    string   `json:"primary_key,omitempty"`
	// LastEdit is zero when the server publishes no editing info.
	LastEdit time.Time `json:"last_edit,omitzero"`
}

// Links returns the query targets of the service: its layers, then its tables.
func (d *Details) Links() []Layer {
	return append(append([]Layer(nil), d.Layers...), d.Tables...)
}

// FieldNames returns the layer's field names in server order.
func (d *Details) FieldNames() []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Name
	}
	return out
}

// apiError is the error envelope ArcGIS returns with an HTTP 200.
type apiError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("arcgis error %d: %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	return msg
}

// getJSON fetches u with params plus f=json and decodes the answer into v.
// Numbers decode as json.Number when v holds interface values.
func (c *Client) getJSON(ctx context.Context, u string, params url.Values, v any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("f", "json")
	full := u + "?" + params.Encode()

	data, err := c.downloader.Get(ctx, full)
	if err != nil {
		return err
	}
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s: %w", u, envelope.Error)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}

// Services returns the whole services catalogue.
func (c *Client) Services(ctx context.Context) ([]Service, error) {
	var doc struct {
		Services []Service `json:"services"`
	}
	if err := c.getJSON(ctx, c.baseURL, nil, &doc); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return doc.Services, nil
}

// ServicesOfType returns the catalogue entries published as typ.
func (c *Client) ServicesOfType(ctx context.Context, typ ServerType) ([]Service, error) {
	all, err := c.Services(ctx)
	if err != nil {
		return nil, err
	}
	var out []Service
	for _, s := range all {
		if strings.EqualFold(string(s.Type), string(typ)) {
			out = append(out, s)
		}
	}
	return out, nil
}

// FeatureService selects the feature server published under name.
func (c *Client) FeatureService(ctx context.Context, name string) (Service, error) {
	all, err := c.Services(ctx)
	if err != nil {
		return Service{}, err
	}
	found := false
	for _, s := range all {
		if s.Name != name {
			continue
		}
		found = true
		if strings.EqualFold(string(s.Type), string(FeatureServer)) {
			return s, nil
		}
	}
	if found {
		return Service{}, fmt.Errorf("%w: %s", ErrNotFeatureServer, name)
	}
	return Service{}, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
}

// Describe loads the service description and the metadata of its first
// layer or table: fields, primary key and last edit date.
func (c *Client) Describe(ctx context.Context, s Service) (*Details, error) {
	var info struct {
		Description           string  `json:"description"`
		ServiceDescription    string  `json:"serviceDescription"`
		Layers                []Layer `json:"layers"`
		Tables                []Layer `json:"tables"`
		SupportedQueryFormats string  `json:"supportedQueryFormats"`
	}
	if err := c.getJSON(ctx, s.URL, nil, &info); err != nil {
		return nil, fmt.Errorf("describe %s: %w", s.Name, err)
	}
	d := &Details{
		Service:     s,
		Description: info.Description,
		Layers:      info.Layers,
		Tables:      info.Tables,
	}
	if d.Description == "" {
		d.Description = info.ServiceDescription
	}
	for _, f := range strings.Split(info.SupportedQueryFormats, ",") {
		if f = strings.TrimSpace(f); f != "" {
			d.OutputFormats = append(d.OutputFormats, f)
		}
	}

	links := d.Links()
	if len(links) == 0 {
		return d, nil
	}
	var meta struct {
		Fields        []Field `json:"fields"`
		UniqueIDField *struct {
			Name string `json:"name"`
		} `json:"uniqueIdField"`
		ObjectIDField string `json:"objectIdField"`
		EditingInfo   *struct {
			LastEditDate int64 `json:"lastEditDate"`
		} `json:"editingInfo"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%d", s.URL, links[0].ID), nil, &meta); err != nil {
		return nil, fmt.Errorf("describe %s layer %d: %w", s.Name, links[0].ID, err)
	}
	d.Fields = meta.Fields
	switch {
	case meta.UniqueIDField != nil && meta.UniqueIDField.Name != "":
		d.PrimaryKey = meta.UniqueIDField.Name
	default:
		d.PrimaryKey = meta.ObjectIDField
	}
	if meta.EditingInfo != nil && meta.EditingInfo.LastEditDate > 0 {
		d.LastEdit = time.UnixMilli(meta.EditingInfo.LastEditDate).UTC()
	}
	return d, nil
}

// LookupColumns are the columns of LookupTable.
var LookupColumns = []string{"NAME", "FIELDS", "URL", "DESCRIPTION", "PRIMARY_KEY", "LAST_EDIT_DATE"}

const lookupDateLayout = "02-01-2006 15:04:05"

// LookupTable describes every service of type typ, or only the named ones
// when include is non-empty, one row per service in catalogue order. Field
// names are joined with "|". Services that fail to describe are skipped
// with a warning.
func (c *Client) LookupTable(ctx context.Context, typ ServerType, include []string) (*tabular.Frame, error) {
	services, err := c.ServicesOfType(ctx, typ)
	if err != nil {
		return nil, err
	}
	if len(include) > 0 {
		want := make(map[string]bool, len(include))
		for _, n := range include {
			want[n] = true
		}
		kept := services[:0]
		for _, s := range services {
			if want[s.Name] {
				kept = append(kept, s)
			}
		}
		services = kept
	}

	details := make([]*Details, len(services))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, s := range services {
		g.Go(func() error {
			d, err := c.Describe(gctx, s)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn("skipping service", "service", s.Name, "error", err)
				return nil
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		edited := ""
		if !d.LastEdit.IsZero() {
			edited = d.LastEdit.Format(lookupDateLayout)
		}
		rows = append(rows, []string{
			d.Name, strings.Join(d.FieldNames(), "|"), d.URL, d.Description, d.PrimaryKey, edited,
		})
	}
	c.logger.Info("open geography lookup built", "type", string(typ), "services", len(rows))
	return tabular.NewFrame(LookupColumns, rows), nil
}
