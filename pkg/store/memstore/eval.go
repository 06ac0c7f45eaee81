package memstore

import (
	"bytes"
	"cmp"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

// truth is SQL three-valued logic.
type truth int8

const (
	tFalse truth = iota
	tTrue
	tUnknown
)

func truthOf(b bool) truth {
	if b {
		return tTrue
	}
	return tFalse
}

func (t truth) not() truth {
	switch t {
	case tTrue:
		return tFalse
	case tFalse:
		return tTrue
	}
	return tUnknown
}

func and(a, b truth) truth {
	if a == tFalse || b == tFalse {
		return tFalse
	}
	if a == tUnknown || b == tUnknown {
		return tUnknown
	}
	return tTrue
}

func or(a, b truth) truth {
	if a == tTrue || b == tTrue {
		return tTrue
	}
	if a == tUnknown || b == tUnknown {
		return tUnknown
	}
	return tFalse
}

// scope binds table aliases to the rows of one candidate result. A nil row
// is the NULL side of an unmatched LEFT JOIN.
type scope struct {
	base string
	rows map[string]store.Row
}

func newScope(alias string, row store.Row) scope {
	return scope{base: alias, rows: map[string]store.Row{alias: row}}
}

func (s scope) with(alias string, row store.Row) scope {
	rows := make(map[string]store.Row, len(s.rows)+1)
	for k, v := range s.rows {
		rows[k] = v
	}
	rows[alias] = row
	return scope{base: s.base, rows: rows}
}

func (s scope) lookup(ref string) (any, error) {
	alias, column := s.base, ref
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		alias, column = ref[:i], ref[i+1:]
	}
	row, ok := s.rows[alias]
	if !ok {
		return nil, fmt.Errorf("memstore: missing FROM-clause entry for %q", alias)
	}
	if row == nil {
		return nil, nil
	}
	v, ok := row[column]
	if !ok {
		return nil, fmt.Errorf("memstore: column %q does not exist", ref)
	}
	return v, nil
}

// matchWhere applies a WHERE list. A leading automatic predicate is ANDed
// with the rest as a unit, the way the rendered SQL groups it.
func matchWhere(conds []builder.Condition, s scope) (bool, error) {
	if len(conds) > 0 && conds[0].Auto {
		head, err := evalList(conds[:1], s)
		if err != nil || head != tTrue {
			return false, err
		}
		conds = conds[1:]
	}
	t, err := evalList(conds, s)
	return t == tTrue, err
}

// evalList folds conditions with AND binding tighter than OR.
func evalList(conds []builder.Condition, s scope) (truth, error) {
	if len(conds) == 0 {
		return tTrue, nil
	}
	result, term := tFalse, tTrue
	for i, c := range conds {
		v, err := evalCondition(c, s)
		if err != nil {
			return tFalse, err
		}
		if i > 0 && c.Logic == builder.LogicOr {
			result = or(result, term)
			term = tTrue
		}
		term = and(term, v)
	}
	return or(result, term), nil
}

func evalCondition(c builder.Condition, s scope) (truth, error) {
	var t truth
	var err error
	if len(c.Group) > 0 {
		t, err = evalList(c.Group, s)
	} else {
		t, err = evalPredicate(c, s)
	}
	if err != nil {
		return tFalse, err
	}
	if c.Not {
		t = t.not()
	}
	return t, nil
}

func evalPredicate(c builder.Condition, s scope) (truth, error) {
	left, err := s.lookup(c.Column)
	if err != nil {
		return tFalse, err
	}
	left = normalize(left)

	switch c.Operator {
	case builder.OpIsNull:
		return truthOf(left == nil), nil
	case builder.OpIsNotNull:
		return truthOf(left != nil), nil
	}

	right := c.Value
	if c.Raw {
		ref, ok := right.(string)
		if !ok {
			return tFalse, fmt.Errorf("memstore: column comparison on %s needs a column name", c.Column)
		}
		if right, err = s.lookup(ref); err != nil {
			return tFalse, err
		}
	}

	switch c.Operator {
	case builder.OpEqual, builder.OpNotEqual, builder.OpGreaterThan, builder.OpGreaterThanOrEqual,
		builder.OpLessThan, builder.OpLessThanOrEqual:
		right = normalize(right)
		if left == nil || right == nil {
			return tUnknown, nil
		}
		n, err := compare(left, right)
		if err != nil {
			return tFalse, err
		}
		switch c.Operator {
		case builder.OpEqual:
			return truthOf(n == 0), nil
		case builder.OpNotEqual:
			return truthOf(n != 0), nil
		case builder.OpGreaterThan:
			return truthOf(n > 0), nil
		case builder.OpGreaterThanOrEqual:
			return truthOf(n >= 0), nil
		case builder.OpLessThan:
			return truthOf(n < 0), nil
		default:
			return truthOf(n <= 0), nil
		}

	case builder.OpIn, builder.OpNotIn:
		values, ok := right.([]interface{})
		if !ok {
			return tFalse, fmt.Errorf("memstore: %s on %s needs a list", c.Operator, c.Column)
		}
		t := tFalse
		for _, v := range values {
			v = normalize(v)
			if left == nil || v == nil {
				t = tUnknown
				continue
			}
			n, err := compare(left, v)
			if err != nil {
				return tFalse, err
			}
			if n == 0 {
				t = tTrue
				break
			}
		}
		if c.Operator == builder.OpNotIn {
			t = t.not()
		}
		return t, nil

	case builder.OpLike, builder.OpILike, builder.OpNotLike:
		pattern, ok := normalize(right).(string)
		if left == nil || !ok {
			return tUnknown, nil
		}
		str, ok := left.(string)
		if !ok {
			return tFalse, fmt.Errorf("memstore: %s on non-text column %s", c.Operator, c.Column)
		}
		matched := likePattern(pattern, c.Operator == builder.OpILike).MatchString(str)
		if c.Operator == builder.OpNotLike {
			matched = !matched
		}
		return truthOf(matched), nil

	case builder.OpBetween:
		bounds, ok := right.([]interface{})
		if !ok || len(bounds) != 2 {
			return tFalse, fmt.Errorf("memstore: BETWEEN on %s needs two bounds", c.Column)
		}
		lo, hi := normalize(bounds[0]), normalize(bounds[1])
		if left == nil || lo == nil || hi == nil {
			return tUnknown, nil
		}
		a, err := compare(left, lo)
		if err != nil {
			return tFalse, err
		}
		b, err := compare(left, hi)
		if err != nil {
			return tFalse, err
		}
		return truthOf(a >= 0 && b <= 0), nil
	}
	return tFalse, fmt.Errorf("memstore: unsupported operator %s", c.Operator)
}

func likePattern(pattern string, fold bool) *regexp.Regexp {
	var sb strings.Builder
	if fold {
		sb.WriteString("(?is)")
	} else {
		sb.WriteString("(?s)")
	}
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}

// normalize dereferences pointers and widens numbers so values coming from
// struct fields and from literals compare equal.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	switch v.(type) {
	case time.Time, []byte:
		return v
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return rv.Interface()
}

// compare orders two normalized, non-nil values.
func compare(a, b any) (int, error) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp.Compare(x, y), nil
		case float64:
			return cmp.Compare(float64(x), y), nil
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmp.Compare(x, y), nil
		case int64:
			return cmp.Compare(x, float64(y)), nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	case []byte:
		if y, ok := b.([]byte); ok {
			return bytes.Compare(x, y), nil
		}
	}
	if reflect.TypeOf(a) == reflect.TypeOf(b) && reflect.TypeOf(a).Comparable() {
		if a == b {
			return 0, nil
		}
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b)), nil
	}
	return 0, fmt.Errorf("memstore: cannot compare %T with %T", a, b)
}

// equalValues reports SQL equality of two stored values; NULL equals nothing.
func equalValues(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return false
	}
	n, err := compare(a, b)
	return err == nil && n == 0
}
