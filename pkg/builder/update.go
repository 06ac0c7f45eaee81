package builder

import (
	"fmt"
	"slices"
	"strings"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// Update starts an UPDATE on table.
func Update(table *schema.TableMetadata) *UpdateQuery {
	return &UpdateQuery{table: table}
}

// UpdateByPK builds UPDATE table SET ... WHERE pk IN (pks).
func UpdateByPK(table *schema.TableMetadata, pks []interface{}, sets ...Assignment) (*UpdateQuery, error) {
	pk := table.PrimaryKeyColumn()
	if pk == nil {
		return nil, fmt.Errorf("update %s by primary key: table has no single-column primary key", table.Name)
	}
	q := Update(table).Where(In(pk.Name, pks...))
	q.sets = append(q.sets, sets...)
	return q, nil
}

// Table returns the updated model.
func (q *UpdateQuery) Table() *schema.TableMetadata { return q.table }

// Assignments returns the SET pairs in the order they were added.
func (q *UpdateQuery) Assignments() []Assignment { return slices.Clone(q.sets) }

// Conditions returns the WHERE conditions.
func (q *UpdateQuery) Conditions() []Condition { return slices.Clone(q.where) }

// Set adds a column assignment. Setting the same column twice keeps the last value.
func (q *UpdateQuery) Set(column string, value interface{}) *UpdateQuery {
	for i := range q.sets {
		if q.sets[i].Column == column {
			q.sets[i].Value = value
			return q
		}
	}
	q.sets = append(q.sets, Assignment{Column: column, Value: value})
	return q
}

// Where adds WHERE conditions to the UPDATE query.
func (q *UpdateQuery) Where(conditions ...Condition) *UpdateQuery {
	q.where = append(q.where, conditions...)
	return q
}

// Returning specifies columns to return after update.
func (q *UpdateQuery) Returning(columns ...string) *UpdateQuery {
	q.returning = columns
	return q
}

// ToSQL generates the UPDATE SQL and arguments.
func (q *UpdateQuery) ToSQL() (string, []interface{}, error) {
	if q.table == nil {
		return "", nil, fmt.Errorf("table metadata not available")
	}
	if len(q.sets) == 0 {
		return "", nil, fmt.Errorf("no columns to update")
	}

	var sql strings.Builder
	args := make([]interface{}, 0, len(q.sets))

	sql.WriteString("UPDATE " + q.table.Name + " SET ")
	for i, set := range q.sets {
		if i > 0 {
			sql.WriteString(", ")
		}
		if set.Value == nil {
			sql.WriteString(set.Column + " = NULL")
			continue
		}
		args = append(args, set.Value)
		fmt.Fprintf(&sql, "%s = $%d", set.Column, len(args))
	}

	if len(q.where) > 0 {
		wb := NewWhereBuilderWithStart(len(args) + 1)
		wb.Add(q.where...)
		whereSQL, whereArgs, err := wb.Build()
		if err != nil {
			return "", nil, fmt.Errorf("failed to build WHERE clause: %w", err)
		}
		sql.WriteString(" " + whereSQL)
		args = append(args, whereArgs...)
	}

	if len(q.returning) > 0 {
		sql.WriteString(" RETURNING " + strings.Join(q.returning, ", "))
	}
	return sql.String(), args, nil
}
