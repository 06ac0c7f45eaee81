package builder

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/visibility"
)

// Select starts a query over table in the live view.
func Select(table *schema.TableMetadata) *SelectQuery {
	return SelectView(table, ViewLive)
}

// SelectView starts a query over table in the given view.
func SelectView(table *schema.TableMetadata, view View) *SelectQuery {
	q := &SelectQuery{table: table}
	if table != nil {
		q.alias = table.Name
	}
	return q.WithView(view)
}

// Table returns the model the query selects from.
func (q *SelectQuery) Table() *schema.TableMetadata { return q.table }

// Alias returns the alias of the base table.
func (q *SelectQuery) Alias() string { return q.alias }

// Clone returns a deep copy of the query.
func (q *SelectQuery) Clone() *SelectQuery {
	c := *q
	c.columns = slices.Clone(q.columns)
	c.where = slices.Clone(q.where)
	c.joins = slices.Clone(q.joins)
	c.orderBy = slices.Clone(q.orderBy)
	return &c
}

// WithView replaces the automatic predicate with the one for view, keeping
// every user condition in place.
func (q *SelectQuery) WithView(view View) *SelectQuery {
	q.where = q.stripAuto()
	if cond, ok := ViewPredicate(q.table, q.alias, view); ok {
		q.where = append([]Condition{cond}, q.where...)
	}
	return q
}

// Unpatched drops the automatic view predicate and nothing else.
func (q *SelectQuery) Unpatched() *SelectQuery {
	q.where = q.stripAuto()
	return q
}

func (q *SelectQuery) stripAuto() []Condition {
	if len(q.where) > 0 && IsViewPredicate(q.table, q.where[0]) {
		return slices.Clone(q.where[1:])
	}
	return q.where
}

// View reports which view the automatic predicate currently selects.
func (q *SelectQuery) View() View {
	if len(q.where) == 0 || !IsViewPredicate(q.table, q.where[0]) {
		return ViewAll
	}
	switch q.where[0].Operator {
	case OpIsNotNull, OpNotEqual:
		return ViewDeleted
	default:
		return ViewLive
	}
}

// Conditions returns the WHERE conditions, automatic predicate first.
func (q *SelectQuery) Conditions() []Condition { return slices.Clone(q.where) }

// UserConditions returns the WHERE conditions without the automatic predicate.
func (q *SelectQuery) UserConditions() []Condition { return slices.Clone(q.stripAuto()) }

// Joins returns the rendered join clauses.
func (q *SelectQuery) Joins() []JoinClause { return slices.Clone(q.joins) }

// Ordering returns the ORDER BY items.
func (q *SelectQuery) Ordering() []OrderBy { return slices.Clone(q.orderBy) }

// SelectedColumns returns the projection, empty meaning every column.
func (q *SelectQuery) SelectedColumns() []string { return slices.Clone(q.columns) }

// Window returns the LIMIT and OFFSET, nil when unset.
func (q *SelectQuery) Window() (limit, offset *int) { return q.limit, q.offset }

// IsSliced reports whether LIMIT or OFFSET was applied.
func (q *SelectQuery) IsSliced() bool { return q.limit != nil || q.offset != nil }

// IsProjected reports whether a column projection or DISTINCT was applied.
func (q *SelectQuery) IsProjected() bool { return len(q.columns) > 0 || q.distinct }

// IsDistinct reports whether DISTINCT was requested.
func (q *SelectQuery) IsDistinct() bool { return q.distinct }

// IsForUpdate reports whether FOR UPDATE was requested.
func (q *SelectQuery) IsForUpdate() bool { return q.forUpdate }

// As renames the base table alias, requalifying the automatic predicate.
func (q *SelectQuery) As(alias string) *SelectQuery {
	view := q.View()
	q.where = q.stripAuto()
	q.alias = alias
	return q.WithView(view)
}

// Columns specifies which columns to select.
func (q *SelectQuery) Columns(cols ...string) *SelectQuery {
	q.columns = cols
	return q
}

// Where adds a WHERE condition.
func (q *SelectQuery) Where(conditions ...Condition) *SelectQuery {
	q.where = append(q.where, conditions...)
	return q
}

// And adds an AND condition (alias for Where).
func (q *SelectQuery) And(condition Condition) *SelectQuery {
	condition.Logic = LogicAnd
	return q.Where(condition)
}

// Or adds an OR condition.
func (q *SelectQuery) Or(condition Condition) *SelectQuery {
	condition.Logic = LogicOr
	return q.Where(condition)
}

// OrderBy adds an ORDER BY clause.
func (q *SelectQuery) OrderBy(column string, direction OrderDirection) *SelectQuery {
	q.orderBy = append(q.orderBy, OrderBy{Column: column, Direction: direction})
	return q
}

// OrderByAsc adds an ascending ORDER BY clause.
func (q *SelectQuery) OrderByAsc(column string) *SelectQuery {
	return q.OrderBy(column, Asc)
}

// OrderByDesc adds a descending ORDER BY clause.
func (q *SelectQuery) OrderByDesc(column string) *SelectQuery {
	return q.OrderBy(column, Desc)
}

// Limit sets the LIMIT clause.
func (q *SelectQuery) Limit(limit int) *SelectQuery {
	q.limit = &limit
	return q
}

// Offset sets the OFFSET clause.
func (q *SelectQuery) Offset(offset int) *SelectQuery {
	q.offset = &offset
	return q
}

// Distinct adds DISTINCT to the query.
func (q *SelectQuery) Distinct() *SelectQuery {
	q.distinct = true
	return q
}

// ForUpdate adds FOR UPDATE lock.
func (q *SelectQuery) ForUpdate() *SelectQuery {
	q.forUpdate = true
	return q
}

// Join traverses a relation. Visibility restrictions are taken from ctx
// when the join is added. A soft-deletable query in the unfiltered view
// joins as if ctx carried ShowAll.
func (q *SelectQuery) Join(ctx context.Context, spec JoinSpec) *SelectQuery {
	if q.table != nil && q.table.IsSoftDeletable() && q.View() == ViewAll {
		ctx = visibility.WithShowAll(ctx)
	}
	q.joins = append(q.joins, buildJoin(ctx, spec, q.alias))
	return q
}

// ToSQL generates the SQL query and arguments.
func (q *SelectQuery) ToSQL() (string, []interface{}, error) {
	cols := "*"
	if len(q.joins) > 0 {
		cols = q.alias + ".*"
	}
	if len(q.columns) > 0 {
		cols = strings.Join(q.columns, ", ")
	}
	if q.distinct {
		cols = "DISTINCT " + cols
	}
	return q.render("SELECT "+cols, true)
}

// CountSQL renders SELECT COUNT(*) over the same rows, ignoring ordering and slicing.
func (q *SelectQuery) CountSQL() (string, []interface{}, error) {
	if q.distinct || len(q.columns) > 0 || q.IsSliced() {
		inner, args, err := q.ToSQL()
		if err != nil {
			return "", nil, err
		}
		return "SELECT COUNT(*) FROM (" + inner + ") AS counted", args, nil
	}
	return q.render("SELECT COUNT(*)", false)
}

func (q *SelectQuery) render(head string, tail bool) (string, []interface{}, error) {
	if q.table == nil {
		return "", nil, fmt.Errorf("table metadata not available")
	}

	var sql strings.Builder
	var args []interface{}

	sql.WriteString(head)
	sql.WriteString(" FROM ")
	sql.WriteString(q.table.Name)
	if q.alias != q.table.Name {
		sql.WriteString(" AS " + q.alias)
	}

	for _, join := range q.joins {
		sql.WriteString(" " + string(join.Type) + " " + join.Table)
		if join.Alias != join.Table {
			sql.WriteString(" AS " + join.Alias)
		}
		on, onArgs, err := buildConditions(join.On, len(args)+1)
		if err != nil {
			return "", nil, fmt.Errorf("failed to build JOIN condition: %w", err)
		}
		sql.WriteString(" ON " + on)
		args = append(args, onArgs...)
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

	if !tail {
		return sql.String(), args, nil
	}

	if len(q.orderBy) > 0 {
		parts := make([]string, len(q.orderBy))
		for i, order := range q.orderBy {
			parts[i] = order.Column + " " + string(order.Direction)
			if order.NullsPos != NullsDefault {
				parts[i] += " " + string(order.NullsPos)
			}
		}
		sql.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q.limit != nil {
		fmt.Fprintf(&sql, " LIMIT %d", *q.limit)
	}
	if q.offset != nil {
		fmt.Fprintf(&sql, " OFFSET %d", *q.offset)
	}
	if q.forUpdate {
		sql.WriteString(" FOR UPDATE")
	}
	return sql.String(), args, nil
}
