package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/geolookup/pkg/catalog"
	"github.com/hazyhaar/geolookup/pkg/geocode"
	"github.com/hazyhaar/geolookup/pkg/nomis"
	"github.com/hazyhaar/geolookup/pkg/opengeo"
	"github.com/hazyhaar/geolookup/pkg/sources"
	"github.com/hazyhaar/geolookup/pkg/tabular"
	"gopkg.in/yaml.v3"
)

type config struct {
	Addr       string `yaml:"addr"`
	LookupsDir string `yaml:"lookups_dir"`
	// CacheFile is relative to LookupsDir unless absolute.
	CacheFile string `yaml:"cache_file"`
	// SourcesDB defaults to <lookups_dir>/sources.db.
	SourcesDB       string        `yaml:"sources_db"`
	SourcesManifest string        `yaml:"sources_manifest"`
	CheckInterval   time.Duration `yaml:"check_interval"`

	MaxCardinalityEndSearch  bool `yaml:"max_cardinality_end_search"`
	LocalAuthorityConstraint bool `yaml:"local_authority_constraint"`
	AllJoinColumns           bool `yaml:"all_join_columns"`
	NormalizeNames           bool `yaml:"normalize_names"`
	Routes                   int  `yaml:"routes"`

	Convention    catalog.Convention `yaml:"convention"`
	Nomis         nomis.Config       `yaml:"nomis"`
	OpenGeography opengeo.Config     `yaml:"open_geography"`
	TLS           tlsConfig          `yaml:"tls"`
}

// tlsConfig switches serve to HTTPS + HTTP/3 + MCP over QUIC. Empty cert and
// key files mean a self-signed development certificate.
type tlsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

func loadConfig(path string, logger *slog.Logger) config {
	cfg := config{
		Addr:                     ":8420",
		LookupsDir:               "lookups",
		SourcesManifest:          "sources.yaml",
		LocalAuthorityConstraint: true,
		Routes:                   geocode.DefaultRoutes,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no config file, using defaults", "path", path)
			return cfg
		}
		logger.Error("read config", "error", err)
		os.Exit(1)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Error("parse config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func (c config) catalogOptions(logger *slog.Logger) catalog.Options {
	return catalog.Options{
		Convention: c.Convention.WithDefaults(),
		CacheFile:  c.CacheFile,
		Logger:     logger,
	}
}

// openLookup loads the lookup index (from cache when possible).
func (c config) openLookup(ctx context.Context, logger *slog.Logger) (*geocode.Lookup, error) {
	opts := c.catalogOptions(logger)
	cat, err := catalog.BuildOrLoad(ctx, c.LookupsDir, opts)
	if err != nil {
		return nil, err
	}
	reader := &tabular.Reader{Ignored: opts.Convention.IgnoredColumns, Logger: logger}
	return geocode.New(cat, tabular.NewLoader(reader), geocode.Options{
		Convention:               opts.Convention,
		MaxCardinalityEndSearch:  c.MaxCardinalityEndSearch,
		LocalAuthorityConstraint: c.LocalAuthorityConstraint,
		AllJoinColumns:           c.AllJoinColumns,
		NormalizeNames:           c.NormalizeNames,
		Logger:                   logger,
	}), nil
}

func (c config) invalidate() error {
	return catalog.Invalidate(c.LookupsDir, catalog.Options{CacheFile: c.CacheFile})
}

func (c config) sourcesDBPath() string {
	if c.SourcesDB != "" {
		return c.SourcesDB
	}
	return filepath.Join(c.LookupsDir, "sources.db")
}

// openSources opens the source registry and seeds it from the manifest.
func (c config) openSources() (*sources.SourceDB, error) {
	if err := os.MkdirAll(filepath.Dir(c.sourcesDBPath()), 0o755); err != nil {
		return nil, err
	}
	sdb, err := sources.OpenSourceDB(c.sourcesDBPath())
	if err != nil {
		return nil, err
	}
	m, err := sources.LoadManifest(c.SourcesManifest)
	if err != nil {
		sdb.Close()
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if err := sdb.Seed(m.Sources); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("seed sources: %w", err)
	}
	return sdb, nil
}
