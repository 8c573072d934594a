package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format names a snapshot file encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts "yaml", "yml" or "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown snapshot format %q", s)
}

// FormatForPath picks the encoding from a file extension, defaulting to YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Encode writes the snapshot to w.
func (s *Snapshot) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown snapshot format %q", format)
	}
}

// Decode reads a snapshot previously written by Encode. Every column type is
// checked with Column.Validate.
func Decode(r io.Reader, format Format) (*Snapshot, error) {
	var snap Snapshot
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&snap); err != nil {
			return nil, fmt.Errorf("decode json snapshot: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
			return nil, fmt.Errorf("decode yaml snapshot: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
	if snap.Namespace == "" {
		snap.Namespace = DefaultNamespace
	}
	for _, t := range snap.Tables {
		for _, col := range t.Columns {
			if err := col.Validate(); err != nil {
				return nil, fmt.Errorf("table %s: %w", t.Name, err)
			}
		}
	}
	return &snap, nil
}

// LoadFile decodes the snapshot stored at path.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f, FormatForPath(path))
}

// StaticSource serves a previously captured snapshot as a MetadataSource.
type StaticSource struct {
	snap *Snapshot
}

// NewStaticSource wraps snap. The snapshot is not copied and must not be
// modified afterwards.
func NewStaticSource(snap *Snapshot) *StaticSource {
	return &StaticSource{snap: snap}
}

// Namespace reports the namespace recorded in the snapshot.
func (s *StaticSource) Namespace() string { return s.snap.Namespace }

// ListTables returns the snapshot's table names in stored order.
func (s *StaticSource) ListTables(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.snap.Tables))
	for _, t := range s.snap.Tables {
		names = append(names, t.Name)
	}
	return names, nil
}

// ListColumns returns a copy of the stored columns of table.
func (s *StaticSource) ListColumns(ctx context.Context, table string) ([]Column, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, t := range s.snap.Tables {
		if t.Name == table {
			return append([]Column(nil), t.Columns...), nil
		}
	}
	return nil, fmt.Errorf("table %q not in snapshot", table)
}
