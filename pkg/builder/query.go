// Package builder composes visibility-aware PostgreSQL queries over
// registered table metadata.
package builder

import (
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// Query represents anything that renders to SQL.
type Query interface {
	// ToSQL generates the SQL query and parameter values.
	ToSQL() (sql string, args []interface{}, err error)
}

// SelectQuery is a SELECT over one model, optionally joined to related models.
// The first WHERE clause may be the automatic view predicate.
type SelectQuery struct {
	table     *schema.TableMetadata
	alias     string
	columns   []string
	where     []Condition
	joins     []JoinClause
	orderBy   []OrderBy
	limit     *int
	offset    *int
	distinct  bool
	forUpdate bool
}

// InsertQuery represents an INSERT of a single row.
type InsertQuery struct {
	table      *schema.TableMetadata
	values     []Assignment
	returning  []string
	onConflict *OnConflict
}

// UpdateQuery represents an UPDATE query.
type UpdateQuery struct {
	table     *schema.TableMetadata
	sets      []Assignment
	where     []Condition
	returning []string
}

// DeleteQuery represents a DELETE query.
type DeleteQuery struct {
	table     *schema.TableMetadata
	where     []Condition
	returning []string
}

// Assignment is a column = value pair in SET or VALUES.
type Assignment struct {
	Column string
	Value  interface{}
}

// Condition represents a WHERE or ON condition.
type Condition struct {
	Column   string
	Operator Operator
	Value    interface{}
	Logic    LogicOperator
	Not      bool
	Group    []Condition // For grouped conditions
	Raw      bool        // Value is a column reference or SQL fragment, not a parameter

	// Auto marks the predicate injected for a view, the only clause Unpatched strips.
	Auto bool
}

// JoinClause is a rendered JOIN with its ON conditions.
type JoinClause struct {
	Type  JoinType
	Table string
	Alias string
	On    []Condition
}

// OrderBy represents an ORDER BY clause.
type OrderBy struct {
	Column    string
	Direction OrderDirection
	NullsPos  NullsPosition
}

// OnConflict represents an ON CONFLICT clause.
type OnConflict struct {
	Columns []string
	Action  ConflictAction
}

// Operator represents a comparison operator.
type Operator string

const (
	OpEqual              Operator = "="
	OpNotEqual           Operator = "!="
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
	OpIn                 Operator = "IN"
	OpNotIn              Operator = "NOT IN"
	OpLike               Operator = "LIKE"
	OpILike              Operator = "ILIKE"
	OpNotLike            Operator = "NOT LIKE"
	OpIsNull             Operator = "IS NULL"
	OpIsNotNull          Operator = "IS NOT NULL"
	OpBetween            Operator = "BETWEEN"
)

// LogicOperator represents a logical operator (AND/OR).
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// JoinType represents a type of JOIN.
type JoinType string

const (
	InnerJoin JoinType = "INNER JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
)

// OrderDirection represents the sort direction.
type OrderDirection string

const (
	Asc  OrderDirection = "ASC"
	Desc OrderDirection = "DESC"
)

// NullsPosition represents NULL positioning in ORDER BY.
type NullsPosition string

const (
	NullsFirst   NullsPosition = "NULLS FIRST"
	NullsLast    NullsPosition = "NULLS LAST"
	NullsDefault NullsPosition = ""
)

// ConflictAction represents the action for ON CONFLICT.
type ConflictAction string

const (
	DoNothing ConflictAction = "DO NOTHING"
)
