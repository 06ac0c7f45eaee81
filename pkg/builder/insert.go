package builder

import (
	"fmt"
	"slices"
	"strings"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// Insert starts an INSERT of one row into table.
func Insert(table *schema.TableMetadata) *InsertQuery {
	return &InsertQuery{table: table}
}

// Table returns the model the row is inserted into.
func (q *InsertQuery) Table() *schema.TableMetadata { return q.table }

// Values returns the column values in insertion order.
func (q *InsertQuery) Values() []Assignment { return slices.Clone(q.values) }

// IgnoresConflicts reports whether ON CONFLICT DO NOTHING was requested.
func (q *InsertQuery) IgnoresConflicts() bool {
	return q.onConflict != nil && q.onConflict.Action == DoNothing
}

// Value sets a column value.
func (q *InsertQuery) Value(column string, value interface{}) *InsertQuery {
	q.values = append(q.values, Assignment{Column: column, Value: value})
	return q
}

// Returning specifies columns to return after insert.
func (q *InsertQuery) Returning(columns ...string) *InsertQuery {
	q.returning = columns
	return q
}

// OnConflictDoNothing adds ON CONFLICT (columns) DO NOTHING.
func (q *InsertQuery) OnConflictDoNothing(columns ...string) *InsertQuery {
	q.onConflict = &OnConflict{Columns: columns, Action: DoNothing}
	return q
}

// ToSQL generates the INSERT SQL and arguments.
func (q *InsertQuery) ToSQL() (string, []interface{}, error) {
	if q.table == nil {
		return "", nil, fmt.Errorf("table metadata not available")
	}

	var sql strings.Builder
	sql.WriteString("INSERT INTO " + q.table.Name)
	if len(q.values) == 0 {
		sql.WriteString(" DEFAULT VALUES")
	}

	args := make([]interface{}, 0, len(q.values))
	if len(q.values) > 0 {
		cols := make([]string, len(q.values))
		placeholders := make([]string, len(q.values))
		for i, v := range q.values {
			cols[i] = v.Column
			args = append(args, v.Value)
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		sql.WriteString(" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")")
	}

	if q.onConflict != nil {
		sql.WriteString(" ON CONFLICT")
		if len(q.onConflict.Columns) > 0 {
			sql.WriteString(" (" + strings.Join(q.onConflict.Columns, ", ") + ")")
		}
		sql.WriteString(" " + string(q.onConflict.Action))
	}
	if len(q.returning) > 0 {
		sql.WriteString(" RETURNING " + strings.Join(q.returning, ", "))
	}
	return sql.String(), args, nil
}
