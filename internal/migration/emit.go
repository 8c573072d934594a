// Package migration turns a schema snapshot into an idempotent, additive DDL
// script.
package migration

import (
	"fmt"
	"time"

	"github.com/robmartinson/pgmigrate/internal/schema"
)

// Clock supplies the generation time recorded in the artifact header.
type Clock func() time.Time

// Kind identifies what a Block guards
type Kind int

const (
	CreateTable Kind = iota
	AddColumn
)

func (k Kind) String() string {
	switch k {
	case CreateTable:
		return "create table"
	case AddColumn:
		return "add column"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Block is one conditional DDL unit: a statement that only runs when the
// object it creates is absent from the catalog. Dialects decide how the
// guard is spelled.
type Block struct {
	Kind      Kind
	Namespace string
	Table     string
	Column    string // empty for CreateTable
	Type      string // reconstructed type expression, AddColumn only
}

// Predicate describes the catalog check guarding the block.
func (b Block) Predicate() string {
	if b.Kind == CreateTable {
		return fmt.Sprintf("table %s.%s exists", b.Namespace, b.Table)
	}
	return fmt.Sprintf("column %s exists on %s.%s", b.Column, b.Namespace, b.Table)
}

// Artifact is a rendered-on-demand migration script.
type Artifact struct {
	GeneratedAt time.Time
	Dialect     Dialect
	Blocks      []Block
}

type options struct {
	dialect Dialect
}

// Option configures Emit
type Option func(*options)

// WithDialect selects the renderer used by the artifact. Guarded is the default.
func WithDialect(d Dialect) Option {
	return func(o *options) {
		if d != nil {
			o.dialect = d
		}
	}
}

// Emit builds the artifact for snap. For every table it produces one
// table-creation block followed by one column-addition block per column, in
// snapshot order. Emit never fails: inconsistent numeric parameters fall back
// to the bare type name.
func Emit(snap *schema.Snapshot, clock Clock, opts ...Option) *Artifact {
	o := options{dialect: Guarded}
	for _, opt := range opts {
		opt(&o)
	}
	if clock == nil {
		clock = time.Now
	}

	ns := schema.DefaultNamespace
	if snap != nil && snap.Namespace != "" {
		ns = snap.Namespace
	}

	a := &Artifact{
		GeneratedAt: clock(),
		Dialect:     o.dialect,
	}
	if snap == nil {
		return a
	}

	for _, table := range snap.Tables {
		a.Blocks = append(a.Blocks, Block{
			Kind:      CreateTable,
			Namespace: ns,
			Table:     table.Name,
		})
		for _, col := range table.Columns {
			a.Blocks = append(a.Blocks, Block{
				Kind:      AddColumn,
				Namespace: ns,
				Table:     table.Name,
				Column:    col.Name,
				Type:      TypeExpression(col),
			})
		}
	}

	return a
}

// TypeExpression reconstructs the column's full type, e.g.
// "character varying(50)" or "numeric(10,2)".
func TypeExpression(col schema.Column) string {
	col = col.Normalize()

	switch {
	case col.MaxLength != nil:
		return fmt.Sprintf("%s(%d)", col.Type, *col.MaxLength)
	case col.Precision != nil && col.Scale != nil:
		return fmt.Sprintf("%s(%d,%d)", col.Type, *col.Precision, *col.Scale)
	default:
		return col.Type
	}
}
