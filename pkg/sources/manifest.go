// CLAUDE:SUMMARY YAML manifest listing the download URL of each lookup table and the collection it belongs to.
package sources

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry describes where one lookup table comes from. File is the name the
// table gets inside the collection directory; for ZIP archives it may be
// left empty and the archive members keep their own names.
type Entry struct {
	ID          string `yaml:"id"`
	Collection  string `yaml:"collection"`
	File        string `yaml:"file,omitempty"`
	URL         string `yaml:"url"`
	Description string `yaml:"description,omitempty"`
	License     string `yaml:"license,omitempty"`
}

// Manifest is the list of known lookup sources.
type Manifest struct {
	Sources []Entry `yaml:"sources"`
}

// LoadManifest reads a manifest file. A missing file yields an empty manifest.
func LoadManifest(p string) (*Manifest, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", p, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", p, err)
	}
	return &m, nil
}

// Validate checks that every entry is complete and IDs are unique.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Sources))
	for i, e := range m.Sources {
		switch {
		case e.ID == "":
			return fmt.Errorf("source %d: missing id", i)
		case e.Collection == "":
			return fmt.Errorf("source %s: missing collection", e.ID)
		case e.URL == "":
			return fmt.Errorf("source %s: missing url", e.ID)
		case strings.ContainsAny(e.Collection, `/\`) || strings.ContainsAny(e.File, `/\`):
			return fmt.Errorf("source %s: collection and file must be plain names", e.ID)
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate source id %s", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

// isArchive reports whether the download is a ZIP, judged from the
// configured file name or the URL path.
func isArchive(url, file string) bool {
	if strings.EqualFold(path.Ext(file), ".zip") {
		return true
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return strings.EqualFold(path.Ext(url), ".zip")
}
