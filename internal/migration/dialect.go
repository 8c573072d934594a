package migration

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Dialect renders a Block as executable SQL.
type Dialect interface {
	Name() string
	Render(b Block) string
}

var (
	// Guarded wraps each statement in a PL/pgSQL anonymous block that checks
	// the catalog first. Works on every Postgres version with DO support.
	Guarded Dialect = guardedDialect{}

	// IfNotExists uses CREATE TABLE IF NOT EXISTS and
	// ADD COLUMN IF NOT EXISTS (Postgres 9.6+).
	IfNotExists Dialect = ifNotExistsDialect{}
)

// Dialects lists every known dialect by name.
var Dialects = map[string]Dialect{
	Guarded.Name():     Guarded,
	IfNotExists.Name(): IfNotExists,
}

// LookupDialect returns the dialect called name.
func LookupDialect(name string) (Dialect, error) {
	d, ok := Dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
	return d, nil
}

func qualified(b Block) string {
	return pq.QuoteIdentifier(b.Namespace) + "." + pq.QuoteIdentifier(b.Table)
}

func statement(b Block) string {
	switch b.Kind {
	case CreateTable:
		return fmt.Sprintf("CREATE TABLE %s ()", qualified(b))
	default:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", qualified(b), pq.QuoteIdentifier(b.Column), b.Type)
	}
}

func comment(b Block) string {
	if b.Kind == CreateTable {
		return fmt.Sprintf("-- check and create table %s", oneLine(b.Table))
	}
	return fmt.Sprintf("-- add column %s to table %s", oneLine(b.Column), oneLine(b.Table))
}

// oneLine keeps identifiers with embedded newlines from escaping a comment.
func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

type guardedDialect struct{}

func (guardedDialect) Name() string { return "guarded" }

func (guardedDialect) Render(b Block) string {
	var predicate string
	switch b.Kind {
	case CreateTable:
		predicate = fmt.Sprintf(
			"SELECT FROM pg_tables WHERE schemaname = %s AND tablename = %s",
			pq.QuoteLiteral(b.Namespace), pq.QuoteLiteral(b.Table),
		)
	default:
		predicate = fmt.Sprintf(
			"SELECT FROM information_schema.columns WHERE table_schema = %s AND table_name = %s AND column_name = %s",
			pq.QuoteLiteral(b.Namespace), pq.QuoteLiteral(b.Table), pq.QuoteLiteral(b.Column),
		)
	}

	body := fmt.Sprintf(
		"BEGIN\n    IF NOT EXISTS (%s) THEN\n        %s;\n    END IF;\nEND ",
		predicate, statement(b),
	)
	tag := dollarTag(body)
	return comment(b) + "\nDO " + tag + "\n" + body + tag + ";\n"
}

// dollarTag picks a dollar-quote delimiter that does not occur in body.
func dollarTag(body string) string {
	tag := "$$"
	for i := 1; strings.Contains(body, tag); i++ {
		tag = fmt.Sprintf("$m%d$", i)
	}
	return tag
}

type ifNotExistsDialect struct{}

func (ifNotExistsDialect) Name() string { return "if-not-exists" }

func (ifNotExistsDialect) Render(b Block) string {
	var stmt string
	switch b.Kind {
	case CreateTable:
		stmt = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ()", qualified(b))
	default:
		stmt = fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", qualified(b), pq.QuoteIdentifier(b.Column), b.Type)
	}
	return comment(b) + "\n" + stmt + ";\n"
}
