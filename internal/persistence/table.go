package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/artifactgaming/carlbot/internal/boterr"
)

// Table is a handle bound to one guild-scoped physical table.
type Table struct {
	p       *Persistence
	name    string
	columns []Column
	byName  map[string]Column
}

// Name returns the derived physical table name.
func (t *Table) Name() string { return t.name }

// Values holds column -> value pairs for inserts and updates.
type Values map[string]any

// Condition is a column-equals-value predicate.
type Condition struct {
	Column string
	Value  any
}

// Where builds a Condition.
func Where(column string, value any) Condition {
	return Condition{Column: column, Value: value}
}

// Select returns a forward-only cursor over the rows matching every
// condition, in insertion (rowid) order.
func (t *Table) Select(ctx context.Context, conds ...Condition) (*Rows, error) {
	var names []string
	for _, col := range t.columns {
		names = append(names, quoteIdent(col.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), quoteIdent(t.name))

	where, args, err := t.buildWhere(conds)
	if err != nil {
		return nil, err
	}
	query += where + " ORDER BY rowid"

	rows, err := t.p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, boterr.Storage("select "+t.name, err)
	}
	return &Rows{rows: rows, columns: t.columns, table: t.name}, nil
}

// Insert adds one row.
func (t *Table) Insert(ctx context.Context, values Values) error {
	cols, args, err := t.orderedValues(values)
	if err != nil {
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.name), strings.Join(cols, ", "), placeholders)
	if _, err := t.p.db.ExecContext(ctx, query, args...); err != nil {
		return boterr.Storage("insert "+t.name, err)
	}
	return nil
}

// Update sets the given values on every row matching the conditions.
func (t *Table) Update(ctx context.Context, values Values, conds ...Condition) error {
	cols, args, err := t.orderedValues(values)
	if err != nil {
		return err
	}
	var sets []string
	for _, col := range cols {
		sets = append(sets, col+" = ?")
	}

	where, whereArgs, err := t.buildWhere(conds)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET %s", quoteIdent(t.name), strings.Join(sets, ", ")) + where
	if _, err := t.p.db.ExecContext(ctx, query, append(args, whereArgs...)...); err != nil {
		return boterr.Storage("update "+t.name, err)
	}
	return nil
}

// Increment adds each delta to its integer column in place on every row
// matching the conditions, alongside optional plain value updates. The
// arithmetic happens inside the database, so concurrent callers never lose
// counts to a read-modify-write race. It reports how many rows were touched
// so callers can seed a first row when none existed.
func (t *Table) Increment(ctx context.Context, values Values, deltas map[string]int64, conds ...Condition) (int64, error) {
	if len(deltas) == 0 {
		return 0, boterr.Storage(t.name, fmt.Errorf("no deltas given"))
	}

	var sets []string
	var args []any
	if len(values) > 0 {
		cols, valArgs, err := t.orderedValues(values)
		if err != nil {
			return 0, err
		}
		for _, col := range cols {
			sets = append(sets, col+" = ?")
		}
		args = append(args, valArgs...)
	}

	deltaCols := make([]string, 0, len(deltas))
	for col := range deltas {
		if _, ok := t.byName[col]; !ok {
			return 0, boterr.Storage(t.name, fmt.Errorf("unknown column %q", col))
		}
		deltaCols = append(deltaCols, col)
	}
	sort.Strings(deltaCols)
	for _, col := range deltaCols {
		quoted := quoteIdent(col)
		sets = append(sets, quoted+" = "+quoted+" + ?")
		args = append(args, deltas[col])
	}

	where, whereArgs, err := t.buildWhere(conds)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s", quoteIdent(t.name), strings.Join(sets, ", ")) + where
	res, err := t.p.db.ExecContext(ctx, query, append(args, whereArgs...)...)
	if err != nil {
		return 0, boterr.Storage("increment "+t.name, err)
	}
	touched, err := res.RowsAffected()
	if err != nil {
		return 0, boterr.Storage("increment "+t.name, err)
	}
	return touched, nil
}

// Delete removes every row matching the conditions.
func (t *Table) Delete(ctx context.Context, conds ...Condition) error {
	where, args, err := t.buildWhere(conds)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s", quoteIdent(t.name)) + where
	if _, err := t.p.db.ExecContext(ctx, query, args...); err != nil {
		return boterr.Storage("delete "+t.name, err)
	}
	return nil
}

// orderedValues validates the value columns and returns them in a
// deterministic order with their bind arguments.
func (t *Table) orderedValues(values Values) ([]string, []any, error) {
	if len(values) == 0 {
		return nil, nil, boterr.Storage(t.name, fmt.Errorf("no values given"))
	}
	cols := make([]string, 0, len(values))
	for col := range values {
		if _, ok := t.byName[col]; !ok {
			return nil, nil, boterr.Storage(t.name, fmt.Errorf("unknown column %q", col))
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		quoted = append(quoted, quoteIdent(col))
		args = append(args, bindValue(values[col]))
	}
	return quoted, args, nil
}

func (t *Table) buildWhere(conds []Condition) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}
	var exprs []string
	var args []any
	for _, c := range conds {
		if _, ok := t.byName[c.Column]; !ok {
			return "", nil, boterr.Storage(t.name, fmt.Errorf("unknown column %q", c.Column))
		}
		exprs = append(exprs, quoteIdent(c.Column)+" = ?")
		args = append(args, bindValue(c.Value))
	}
	return " WHERE " + strings.Join(exprs, " AND "), args, nil
}

func bindValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// Rows is a lazy, forward-only cursor over a selection.
type Rows struct {
	rows    *sql.Rows
	columns []Column
	table   string
}

// Next advances the cursor. It returns false when no rows remain.
func (r *Rows) Next() bool { return r.rows.Next() }

// Row scans the current row.
func (r *Rows) Row() (Row, error) {
	targets := make([]any, len(r.columns))
	for i, col := range r.columns {
		if col.Type == Text {
			targets[i] = new(sql.NullString)
		} else {
			targets[i] = new(sql.NullInt64)
		}
	}
	if err := r.rows.Scan(targets...); err != nil {
		return nil, boterr.Storage("scan "+r.table, err)
	}

	row := make(Row, len(r.columns))
	for i, col := range r.columns {
		switch col.Type {
		case Text:
			row[col.Name] = targets[i].(*sql.NullString).String
		case Bool:
			row[col.Name] = targets[i].(*sql.NullInt64).Int64 != 0
		default:
			row[col.Name] = targets[i].(*sql.NullInt64).Int64
		}
	}
	return row, nil
}

// Err reports any iteration error.
func (r *Rows) Err() error {
	if err := r.rows.Err(); err != nil {
		return boterr.Storage("iterate "+r.table, err)
	}
	return nil
}

// Close releases the cursor.
func (r *Rows) Close() error { return r.rows.Close() }

// Row holds one scanned row keyed by column name.
type Row map[string]any

// String returns the text value of col, or "".
func (r Row) String(col string) string {
	s, _ := r[col].(string)
	return s
}

// Int returns the integer value of col, or 0.
func (r Row) Int(col string) int64 {
	n, _ := r[col].(int64)
	return n
}

// Bool returns the boolean value of col, or false.
func (r Row) Bool(col string) bool {
	b, _ := r[col].(bool)
	return b
}
