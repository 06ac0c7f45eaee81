package builder

import (
	"fmt"
	"slices"
	"strings"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// Delete starts a physical DELETE on table.
func Delete(table *schema.TableMetadata) *DeleteQuery {
	return &DeleteQuery{table: table}
}

// DeleteByPK builds DELETE FROM table WHERE pk IN (pks).
func DeleteByPK(table *schema.TableMetadata, pks []interface{}) (*DeleteQuery, error) {
	pk := table.PrimaryKeyColumn()
	if pk == nil {
		return nil, fmt.Errorf("delete %s by primary key: table has no single-column primary key", table.Name)
	}
	return Delete(table).Where(In(pk.Name, pks...)), nil
}

// Table returns the model rows are deleted from.
func (q *DeleteQuery) Table() *schema.TableMetadata { return q.table }

// Conditions returns the WHERE conditions.
func (q *DeleteQuery) Conditions() []Condition { return slices.Clone(q.where) }

// Where adds WHERE conditions to the DELETE query.
func (q *DeleteQuery) Where(conditions ...Condition) *DeleteQuery {
	q.where = append(q.where, conditions...)
	return q
}

// Returning specifies columns to return after delete.
func (q *DeleteQuery) Returning(columns ...string) *DeleteQuery {
	q.returning = columns
	return q
}

// ToSQL generates the DELETE SQL and arguments.
func (q *DeleteQuery) ToSQL() (string, []interface{}, error) {
	if q.table == nil {
		return "", nil, fmt.Errorf("table metadata not available")
	}

	var sql strings.Builder
	var args []interface{}

	sql.WriteString("DELETE FROM " + q.table.Name)
	if len(q.where) > 0 {
		wb := NewWhereBuilder()
		wb.Add(q.where...)
		whereSQL, whereArgs, err := wb.Build()
		if err != nil {
			return "", nil, fmt.Errorf("failed to build WHERE clause: %w", err)
		}
		sql.WriteString(" " + whereSQL)
		args = whereArgs
	}
	if len(q.returning) > 0 {
		sql.WriteString(" RETURNING " + strings.Join(q.returning, ", "))
	}
	return sql.String(), args, nil
}
