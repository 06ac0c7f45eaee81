package builder

import (
	"fmt"
	"strings"
)

// WhereBuilder renders a condition list with positional parameters.
type WhereBuilder struct {
	conditions []Condition
	paramStart int
}

// NewWhereBuilder creates a new WhereBuilder numbering parameters from $1.
func NewWhereBuilder() *WhereBuilder {
	return NewWhereBuilderWithStart(1)
}

// NewWhereBuilderWithStart creates a WhereBuilder whose first parameter is $paramStart.
func NewWhereBuilderWithStart(paramStart int) *WhereBuilder {
	return &WhereBuilder{paramStart: paramStart}
}

// Add adds a condition to the WHERE clause.
func (w *WhereBuilder) Add(conditions ...Condition) {
	w.conditions = append(w.conditions, conditions...)
}

// Build generates the WHERE clause SQL and arguments.
//
// An automatic view predicate in first position is ANDed with the rest as a
// unit, so an OR among user conditions cannot escape the view.
func (w *WhereBuilder) Build() (string, []interface{}, error) {
	if len(w.conditions) == 0 {
		return "", nil, nil
	}
	sql, args, err := buildConditions(composeAuto(w.conditions), w.paramStart)
	if err != nil {
		return "", nil, err
	}
	return "WHERE " + sql, args, nil
}

func composeAuto(conds []Condition) []Condition {
	if len(conds) < 2 || !conds[0].Auto {
		return conds
	}
	rest := conds[1:]
	hasOr := false
	for _, c := range rest {
		if c.Logic == LogicOr {
			hasOr = true
			break
		}
	}
	if !hasOr {
		return conds
	}
	return []Condition{conds[0], Group(rest...)}
}

// buildConditions recursively builds conditions.
func buildConditions(conditions []Condition, paramStart int) (string, []interface{}, error) {
	var sb strings.Builder
	var args []interface{}
	paramNum := paramStart

	for i, cond := range conditions {
		if i > 0 {
			logic := cond.Logic
			if logic == "" {
				logic = LogicAnd
			}
			sb.WriteString(" " + string(logic) + " ")
		}

		var part string
		var partArgs []interface{}
		var err error
		if len(cond.Group) > 0 {
			part, partArgs, err = buildConditions(cond.Group, paramNum)
			part = "(" + part + ")"
		} else {
			part, partArgs, err = buildCondition(cond, paramNum)
		}
		if err != nil {
			return "", nil, err
		}
		if cond.Not {
			part = "NOT (" + part + ")"
		}
		sb.WriteString(part)
		args = append(args, partArgs...)
		paramNum += len(partArgs)
	}
	return sb.String(), args, nil
}

// buildCondition builds a single condition.
func buildCondition(cond Condition, paramNum int) (string, []interface{}, error) {
	column := cond.Column
	if column == "" {
		return "", nil, fmt.Errorf("condition without column")
	}

	switch cond.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual,
		OpLike, OpILike, OpNotLike:
		if cond.Raw {
			ref, ok := cond.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("raw condition on %s requires a string value", column)
			}
			return fmt.Sprintf("%s %s %s", column, cond.Operator, ref), nil, nil
		}
		return fmt.Sprintf("%s %s $%d", column, cond.Operator, paramNum), []interface{}{cond.Value}, nil

	case OpIn, OpNotIn:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return "", nil, fmt.Errorf("IN/NOT IN operator requires []interface{} value")
		}
		if len(values) == 0 {
			// IN () is a syntax error in PostgreSQL
			if cond.Operator == OpIn {
				return "FALSE", nil, nil
			}
			return "TRUE", nil, nil
		}
		placeholders := make([]string, len(values))
		for i := range values {
			placeholders[i] = fmt.Sprintf("$%d", paramNum+i)
		}
		return fmt.Sprintf("%s %s (%s)", column, cond.Operator, strings.Join(placeholders, ", ")), values, nil

	case OpIsNull:
		return column + " IS NULL", nil, nil

	case OpIsNotNull:
		return column + " IS NOT NULL", nil, nil

	case OpBetween:
		values, ok := cond.Value.([]interface{})
		if !ok || len(values) != 2 {
			return "", nil, fmt.Errorf("BETWEEN operator requires [min, max] array")
		}
		return fmt.Sprintf("%s BETWEEN $%d AND $%d", column, paramNum, paramNum+1), values, nil

	default:
		return "", nil, fmt.Errorf("unknown operator: %s", cond.Operator)
	}
}

// Eq creates an equality condition.
func Eq(column string, value interface{}) Condition {
	return Condition{Column: column, Operator: OpEqual, Value: value, Logic: LogicAnd}
}

// NotEq creates a not-equal condition.
func NotEq(column string, value interface{}) Condition {
	return Condition{Column: column, Operator: OpNotEqual, Value: value, Logic: LogicAnd}
}

// Gt creates a greater-than condition.
func Gt(column string, value interface{}) Condition {
	return Condition{Column: column, Operator: OpGreaterThan, Value: value, Logic: LogicAnd}
}

// Gte creates a greater-than-or-equal condition.
func Gte(column string, value interface{}) Condition {
	return Condition{Column: column, Operator: OpGreaterThanOrEqual, Value: value, Logic: LogicAnd}
}

// Lt creates a less-than condition.
func Lt(column string, value interface{}) Condition {
	return Condition{Column: column, Operator: OpLessThan, Value: value, Logic: LogicAnd}
}

// Lte creates a less-than-or-equal condition.
func Lte(column string, value interface{}) Condition {
	return Condition{Column: column, Operator: OpLessThanOrEqual, Value: value, Logic: LogicAnd}
}

// In creates an IN condition.
func In(column string, values ...interface{}) Condition {
	return Condition{Column: column, Operator: OpIn, Value: values, Logic: LogicAnd}
}

// NotIn creates a NOT IN condition.
func NotIn(column string, values ...interface{}) Condition {
	return Condition{Column: column, Operator: OpNotIn, Value: values, Logic: LogicAnd}
}

// Like creates a LIKE condition.
func Like(column string, pattern string) Condition {
	return Condition{Column: column, Operator: OpLike, Value: pattern, Logic: LogicAnd}
}

// ILike creates an ILIKE condition (case-insensitive).
func ILike(column string, pattern string) Condition {
	return Condition{Column: column, Operator: OpILike, Value: pattern, Logic: LogicAnd}
}

// IsNull creates an IS NULL condition.
func IsNull(column string) Condition {
	return Condition{Column: column, Operator: OpIsNull, Logic: LogicAnd}
}

// IsNotNull creates an IS NOT NULL condition.
func IsNotNull(column string) Condition {
	return Condition{Column: column, Operator: OpIsNotNull, Logic: LogicAnd}
}

// Between creates a BETWEEN condition.
func Between(column string, min, max interface{}) Condition {
	return Condition{Column: column, Operator: OpBetween, Value: []interface{}{min, max}, Logic: LogicAnd}
}

// ColEq compares two column references, as in a join condition.
func ColEq(column, other string) Condition {
	return Condition{Column: column, Operator: OpEqual, Value: other, Logic: LogicAnd, Raw: true}
}

// Or sets the logic operator to OR for the next condition.
func Or(cond Condition) Condition {
	cond.Logic = LogicOr
	return cond
}

// Not negates a condition.
func Not(cond Condition) Condition {
	cond.Not = true
	return cond
}

// Group creates a grouped condition.
func Group(conditions ...Condition) Condition {
	return Condition{Group: conditions, Logic: LogicAnd}
}
