// Package persistence provides the per-guild, schema-on-demand table
// contract every module stores its rows through.
//
// A table is addressed by (guild, module, suffix) and materialized lazily
// on first access. All statements are parameterized; identifiers are
// validated and quoted before they reach SQL text.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/artifactgaming/carlbot/internal/boterr"
)

// ColumnType enumerates the storage types a module can declare.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Bool
)

// sqlType maps a declared type to its SQLite affinity.
func (t ColumnType) sqlType() string {
	if t == Text {
		return "TEXT"
	}
	return "INTEGER"
}

// Column declares one table column.
type Column struct {
	Name string
	Type ColumnType
}

// Persistence owns the database handle shared by all guild tables.
type Persistence struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Persistence, error) {
	if strings.TrimSpace(path) == "" {
		return nil, boterr.Configuration("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, boterr.Storage("open", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, boterr.Storage("ping", err)
	}

	return &Persistence{db: db}, nil
}

// Close closes the database handle.
func (p *Persistence) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// GuildTable ensures the table for (guildID, moduleID, suffix) exists with
// the given columns and returns a handle bound to it. Creation is
// idempotent and safe under concurrent first access; columns added to the
// declaration later are altered in. A declared column whose stored type
// conflicts with an existing one fails with a StorageError.
func (p *Persistence) GuildTable(ctx context.Context, guildID, moduleID, suffix string, columns []Column) (*Table, error) {
	for _, part := range []string{guildID, moduleID, suffix} {
		if err := validIdent(part); err != nil {
			return nil, err
		}
	}
	if len(columns) == 0 {
		return nil, boterr.Configuration("table %s/%s/%s declares no columns", guildID, moduleID, suffix)
	}
	for _, col := range columns {
		if err := validIdent(col.Name); err != nil {
			return nil, err
		}
	}

	name := fmt.Sprintf("guild_%s_%s_%s", guildID, moduleID, suffix)

	var defs []string
	for _, col := range columns {
		defs = append(defs, quoteIdent(col.Name)+" "+col.Type.sqlType())
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := p.db.ExecContext(ctx, create); err != nil {
		return nil, boterr.Storage("create table "+name, err)
	}

	existing, err := p.tableColumns(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, col := range columns {
		have, ok := existing[col.Name]
		if !ok {
			alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(name), quoteIdent(col.Name), col.Type.sqlType())
			if _, err := p.db.ExecContext(ctx, alter); err != nil {
				// Another dispatch may have added it first.
				if strings.Contains(err.Error(), "duplicate column name") {
					continue
				}
				return nil, boterr.Storage("alter table "+name, err)
			}
			continue
		}
		if !strings.EqualFold(have, col.Type.sqlType()) {
			return nil, boterr.Storage("ensure table "+name,
				fmt.Errorf("column %q is %s, declared %s", col.Name, have, col.Type.sqlType()))
		}
	}

	cols := make(map[string]Column, len(columns))
	for _, col := range columns {
		cols[col.Name] = col
	}

	return &Table{p: p, name: name, columns: columns, byName: cols}, nil
}

// tableColumns returns name -> declared SQL type for an existing table.
func (p *Persistence) tableColumns(ctx context.Context, name string) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?)", name)
	if err != nil {
		return nil, boterr.Storage("inspect table "+name, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var colName, colType string
		if err := rows.Scan(&colName, &colType); err != nil {
			return nil, boterr.Storage("inspect table "+name, err)
		}
		out[colName] = colType
	}
	if err := rows.Err(); err != nil {
		return nil, boterr.Storage("inspect table "+name, err)
	}
	return out, nil
}

// validIdent accepts letters, digits, underscore, dot and dash. Everything
// else, including quoting characters, is rejected so identifiers can be
// safely double-quoted.
func validIdent(s string) error {
	if s == "" {
		return boterr.Configuration("empty identifier")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '.', r == '-':
		default:
			return boterr.Configuration("invalid identifier %q", s)
		}
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}
