package schema

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSourceUnavailable is returned when the metadata source cannot be reached
// or one of its queries fails.
var ErrSourceUnavailable = errors.New("metadata source unavailable")

// MetadataSource lists tables and their columns within a single namespace.
type MetadataSource interface {
	// ListTables returns the names of all tables in the namespace.
	ListTables(ctx context.Context) ([]string, error)
	// ListColumns returns the columns of table in declaration order.
	ListColumns(ctx context.Context, table string) ([]Column, error)
}

// Namespacer is implemented by sources that report which namespace they read.
type Namespacer interface {
	Namespace() string
}

// Read builds a Snapshot from src. Tables and columns keep the order the
// source reports them in. Any source failure aborts the read and is wrapped
// with ErrSourceUnavailable; no partial snapshot is returned. A column whose
// type fails Column.Validate aborts the read with ErrInvalidType.
func Read(ctx context.Context, src MetadataSource) (*Snapshot, error) {
	names, err := src.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %w", ErrSourceUnavailable, err)
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		cols, err := src.ListColumns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: list columns of %s: %w", ErrSourceUnavailable, name, err)
		}

		resolved := make([]Column, len(cols))
		for i, col := range cols {
			if err := col.Validate(); err != nil {
				return nil, fmt.Errorf("table %s: %w", name, err)
			}
			resolved[i] = col.Normalize()
		}

		tables = append(tables, Table{Name: name, Columns: resolved})
	}

	ns := DefaultNamespace
	if n, ok := src.(Namespacer); ok && n.Namespace() != "" {
		ns = n.Namespace()
	}

	return &Snapshot{
		Namespace:  ns,
		CapturedAt: time.Now(),
		Tables:     tables,
	}, nil
}
