// Package schema captures the table and column structure of a database
// namespace as an immutable snapshot.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultNamespace is the schema that tables are enumerated from
const DefaultNamespace = "public"

// Column stores information about a column's structure
type Column struct {
	Name      string `yaml:"name" json:"name"`
	Type      string `yaml:"type" json:"type"`
	MaxLength *int   `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	Precision *int   `yaml:"precision,omitempty" json:"precision,omitempty"`
	Scale     *int   `yaml:"scale,omitempty" json:"scale,omitempty"`
}

// Table stores information about a table's structure
type Table struct {
	Name    string   `yaml:"name" json:"name"`
	Columns []Column `yaml:"columns" json:"columns"`
}

// Snapshot is a point-in-time capture of every table in one namespace.
type Snapshot struct {
	Namespace  string    `yaml:"namespace" json:"namespace"`
	CapturedAt time.Time `yaml:"captured_at" json:"captured_at"`
	Tables     []Table   `yaml:"tables" json:"tables"`
}

// IsVarChar reports whether typ is a variable-length character type.
func IsVarChar(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "character varying", "varchar":
		return true
	}
	return false
}

// IsFixedPoint reports whether typ is a fixed-point numeric type.
func IsFixedPoint(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "numeric", "decimal":
		return true
	}
	return false
}

// Normalize drops type parameters that do not apply to the column's base type.
//
// A max length survives only on varchar-family columns. Precision and scale
// survive only on numeric-family columns, and only as a pair: when either is
// missing both are dropped and the column falls back to its bare type.
func (c Column) Normalize() Column {
	out := Column{Name: c.Name, Type: c.Type}

	if IsVarChar(c.Type) && c.MaxLength != nil {
		out.MaxLength = intPtr(*c.MaxLength)
	}
	if IsFixedPoint(c.Type) && c.Precision != nil && c.Scale != nil {
		out.Precision = intPtr(*c.Precision)
		out.Scale = intPtr(*c.Scale)
	}

	return out
}

func intPtr(v int) *int { return &v }

// ErrInvalidType is returned for a column whose type is not a plain type
// expression.
var ErrInvalidType = errors.New("invalid column type")

// typeExprRe matches a base type as it may appear in a column definition:
// an optionally schema-qualified name made of plain or double-quoted
// identifiers, extra keywords such as "without time zone", an optional
// (n) or (p,s) modifier and any number of array bounds.
var typeExprRe = regexp.MustCompile(
	`^(?:[A-Za-z_][A-Za-z0-9_$]*|"(?:[^"\x00]|"")+")` +
		`(?:\.(?:[A-Za-z_][A-Za-z0-9_$]*|"(?:[^"\x00]|"")+"))?` +
		`(?: [A-Za-z_][A-Za-z0-9_]*)*` +
		`(?:\(\d+(?:, ?\d+)?\))?` +
		`(?: [A-Za-z_][A-Za-z0-9_]*)*` +
		`(?:\[\d*\])*$`,
)

// Validate rejects a column whose type could not be emitted verbatim into a
// DDL statement.
func (c Column) Validate() error {
	if !typeExprRe.MatchString(c.Type) {
		return fmt.Errorf("%w: column %q has type %q", ErrInvalidType, c.Name, c.Type)
	}
	return nil
}
