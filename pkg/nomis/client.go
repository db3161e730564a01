// CLAUDE:SUMMARY Nomis statistics API client: dataset/bulk/structure URLs, proxy-aware HTTP, bounded-retry downloads, dataset listing.
package nomis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/geolookup/pkg/sources"
)

// DefaultBaseURL is the Nomis dataset API root.
const DefaultBaseURL = "http://www.nomisweb.co.uk/api/v01/dataset/"

// Measure selects raw values or percentages.
type Measure int

const (
	MeasureAll     Measure = 0
	MeasureValue   Measure = 20100
	MeasurePercent Measure = 20301
)

// ParseMeasure maps "value", "percent" or "" to a Measure.
func ParseMeasure(s string) (Measure, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return MeasureAll, nil
	case "value":
		return MeasureValue, nil
	case "percent":
		return MeasurePercent, nil
	}
	return MeasureAll, fmt.Errorf("unknown measure %q (want value or percent)", s)
}

// Qualifier restricts one dimension of a dataset, e.g. geography or age.
type Qualifier struct {
	Name   string
	Values []string
}

// Query describes a dataset extract.
type Query struct {
	Dataset    string
	Qualifiers []Qualifier
	// Select limits the returned columns.
	Select  []string
	Measure Measure
}

// Config configures a Client.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// Proxy is an http(s) proxy URL used for every request.
	Proxy string `yaml:"proxy"`
}

// Client talks to the Nomis API.
type Client struct {
	baseURL    string
	apiKey     string
	downloader *sources.Downloader
	logger     *slog.Logger
}

// New creates a Client. An invalid proxy URL is an error.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxy, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	client := &http.Client{Timeout: 10 * time.Minute, Transport: transport}

	return &Client{
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		downloader: &sources.Downloader{Client: client},
		logger:     logger,
	}, nil
}

func (c *Client) uid() string {
	if c.apiKey == "" {
		return ""
	}
	return "uid=" + c.apiKey
}

// StructureURL returns the URL listing every dataset.
func (c *Client) StructureURL() string {
	u := c.baseURL + "def.sdmx.json"
	if uid := c.uid(); uid != "" {
		u += "?" + uid
	}
	return u
}

// BulkURL returns the bulk CSV URL of a dataset.
func (c *Client) BulkURL(dataset string) string {
	u := c.baseURL + dataset + ".bulk.csv"
	if uid := c.uid(); uid != "" {
		u += "?" + uid
	}
	return u
}

// DataURL returns the CSV URL of a dataset extract. Geography qualifiers
// with several codes are compacted into ranges.
func (c *Client) DataURL(q Query) (string, error) {
	if q.Dataset == "" {
		return "", fmt.Errorf("dataset is required")
	}
	var sb strings.Builder
	sb.WriteString(c.baseURL)
	sb.WriteString(q.Dataset)
	sb.WriteString(".data.csv?")

	qualifiers := q.Qualifiers
	if q.Measure != MeasureAll {
		qualifiers = append(append([]Qualifier{}, qualifiers...),
			Qualifier{Name: "measures", Values: []string{fmt.Sprint(int(q.Measure))}})
	}
	for _, qual := range qualifiers {
		if qual.Name == "" || len(qual.Values) == 0 {
			return "", fmt.Errorf("qualifier %q has no values", qual.Name)
		}
		var value string
		switch {
		case len(qual.Values) == 1:
			value = qual.Values[0]
		case qual.Name == "geography":
			value = GeographyRanges(qual.Values)
		default:
			value = strings.Join(qual.Values, ",")
		}
		fmt.Fprintf(&sb, "%s=%s&", qual.Name, value)
	}
	if len(q.Select) > 0 {
		fmt.Fprintf(&sb, "select=%s&", strings.Join(q.Select, ","))
	}
	sb.WriteString(c.uid())
	return strings.TrimRight(sb.String(), "&?"), nil
}

// DownloadTable saves a dataset extract as CSV in dir and returns its path.
// An empty name becomes "<dataset>_query.csv".
func (c *Client) DownloadTable(ctx context.Context, q Query, dir, name string) (string, error) {
	u, err := c.DataURL(q)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = q.Dataset + "_query.csv"
	}
	return c.save(ctx, u, dir, name)
}

// DownloadBulk saves the bulk CSV of a dataset in dir as "<dataset>_bulk.csv".
func (c *Client) DownloadBulk(ctx context.Context, dataset, dir string) (string, error) {
	if dataset == "" {
		return "", fmt.Errorf("dataset is required")
	}
	return c.save(ctx, c.BulkURL(dataset), dir, dataset+"_bulk.csv")
}

func (c *Client) save(ctx context.Context, u, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	dest := filepath.Join(dir, name)
	c.logger.Info("nomis download", "file", dest)
	if err := c.downloader.Download(ctx, u, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Dataset is one entry of the Nomis structure listing.
type Dataset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type textValue struct {
	Value string `json:"value"`
}

type structureDoc struct {
	Structure struct {
		KeyFamilies struct {
			KeyFamily []struct {
				ID          string     `json:"id"`
				Name        textValue  `json:"name"`
				Description *textValue `json:"description"`
			} `json:"keyfamily"`
		} `json:"keyfamilies"`
	} `json:"structure"`
}

// Datasets lists every dataset the API exposes.
func (c *Client) Datasets(ctx context.Context) ([]Dataset, error) {
	data, err := c.downloader.Get(ctx, c.StructureURL())
	if err != nil {
		return nil, fmt.Errorf("GET structure: %w", err)
	}

	var doc structureDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode structure: %w", err)
	}
	out := make([]Dataset, 0, len(doc.Structure.KeyFamilies.KeyFamily))
	for _, kf := range doc.Structure.KeyFamilies.KeyFamily {
		d := Dataset{ID: kf.ID, Name: kf.Name.Value}
		if kf.Description != nil {
			d.Description = kf.Description.Value
		}
		out = append(out, d)
	}
	return out, nil
}
