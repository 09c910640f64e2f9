// Package export reads and writes portable dumps of the saved-tab
// collection. A dump carries the records in YAML or JSON and can be fed
// back through the regular save path, so restoring applies the same URL
// dedup as a normal save.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tabvault/tabvault/app/tabs"
)

// Version is the current dump format version
const Version = 1

// Format selects the dump encoding
type Format string

// supported encodings
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat converts user input to a Format, empty input means yaml
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatYAML:
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("invalid format %q, must be one of: yaml, json", s)
}

// File is a complete dump of the collection
type File struct {
	Version    int       `yaml:"version" json:"version" jsonschema:"required"`
	ExportedAt time.Time `yaml:"exported_at" json:"exported_at"`
	Tabs       []Entry   `yaml:"tabs" json:"tabs" jsonschema:"required"`
}

// Entry is one record in a dump. SavedAt is informational; a restore
// assigns fresh ids and timestamps through the regular save path.
type Entry struct {
	URL        string `yaml:"url" json:"url" jsonschema:"required"`
	Title      string `yaml:"title,omitempty" json:"title,omitempty"`
	FavIconURL string `yaml:"favicon_url,omitempty" json:"favicon_url,omitempty"`
	SavedAt    int64  `yaml:"saved_at,omitempty" json:"saved_at,omitempty"`
}

// Saver persists restored entries, normally tabs.Manager
type Saver interface {
	SaveBatch(candidates []tabs.Candidate) (int, error)
}

// Write dumps the records to w in the requested format
func Write(w io.Writer, records []tabs.SavedTab, format Format) error {
	f := File{Version: Version, ExportedAt: time.Now().UTC(), Tabs: make([]Entry, 0, len(records))}
	for _, t := range records {
		f.Tabs = append(f.Tabs, Entry{URL: t.URL, Title: t.Title, FavIconURL: t.FavIconURL, SavedAt: t.SavedAt})
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("failed to encode json dump: %w", err)
		}
	default:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("failed to encode yaml dump: %w", err)
		}
	}
	return nil
}

// Read parses and validates a dump
func Read(r io.Reader, format Format) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}

	var f File
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse json dump: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse yaml dump: %w", err)
		}
	}

	if err := VerifyAgainstEmbeddedSchema(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Restore feeds the dump entries through the save path and returns the
// number of records actually added after dedup.
func Restore(saver Saver, f *File) (int, error) {
	candidates := make([]tabs.Candidate, 0, len(f.Tabs))
	for _, e := range f.Tabs {
		candidates = append(candidates, tabs.Candidate{URL: e.URL, Title: e.Title, FavIconURL: e.FavIconURL})
	}
	return saver.SaveBatch(candidates)
}

// validateEntries performs basic validation of required fields
func validateEntries(f *File) error {
	if f.Version != Version {
		return fmt.Errorf("unsupported dump version %d, expected %d", f.Version, Version)
	}
	if len(f.Tabs) == 0 {
		return fmt.Errorf("dump has no tabs")
	}
	for i, e := range f.Tabs {
		if e.URL == "" {
			return fmt.Errorf("tab %d: url is required", i+1)
		}
		if u, err := url.Parse(e.URL); err != nil || !u.IsAbs() {
			return fmt.Errorf("tab %d: invalid url %q", i+1, e.URL)
		}
	}
	return nil
}
