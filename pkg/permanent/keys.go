package permanent

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

// keyValue widens integers and dereferences pointers so the same identity
// read from a struct field and from a driver row maps to one key.
func keyValue(v any) any {
	v = indirect(v)
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.String:
		return rv.String()
	}
	if rv.Type().Comparable() {
		return v
	}
	return fmt.Sprint(v)
}

// rowKey identifies a row of table by its primary key.
func rowKey(table *schema.TableMetadata, row store.Row) (any, error) {
	if table.PrimaryKey == nil || len(table.PrimaryKey.Columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, table.Name)
	}
	if len(table.PrimaryKey.Columns) == 1 {
		k := keyValue(row[table.PrimaryKey.Columns[0]])
		if k == nil {
			return nil, fmt.Errorf("%w: %s row has no primary key value", ErrNoPrimaryKey, table.Name)
		}
		return k, nil
	}
	parts := make([]string, len(table.PrimaryKey.Columns))
	for i, c := range table.PrimaryKey.Columns {
		parts[i] = fmt.Sprintf("%v", keyValue(row[c]))
	}
	return strings.Join(parts, "\x00"), nil
}

// recordKey is rowKey for a record handed in by the caller. A zero primary
// key value marks a record that was never stored.
func recordKey(table *schema.TableMetadata, row store.Row) (any, error) {
	key, err := rowKey(table, row)
	if err != nil {
		return nil, err
	}
	for _, c := range table.PrimaryKey.Columns {
		if isZero(indirect(row[c])) {
			return nil, fmt.Errorf("%w: %s row has a zero %s", ErrNoPrimaryKey, table.Name, c)
		}
	}
	return key, nil
}

// sortRows orders rows by primary key.
func sortRows(table *schema.TableMetadata, rows []store.Row) {
	if table.PrimaryKey == nil {
		return
	}
	cols := table.PrimaryKey.Columns
	slices.SortStableFunc(rows, func(a, b store.Row) int {
		for _, c := range cols {
			if n := compareKeys(keyValue(a[c]), keyValue(b[c])); n != 0 {
				return n
			}
		}
		return 0
	})
}

func compareKeys(a, b any) int {
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// matchRows returns one condition selecting exactly rows by primary key.
func matchRows(table *schema.TableMetadata, rows []store.Row) (builder.Condition, error) {
	if table.PrimaryKey == nil || len(table.PrimaryKey.Columns) == 0 {
		return builder.Condition{}, fmt.Errorf("%w: %s", ErrNoPrimaryKey, table.Name)
	}
	cols := table.PrimaryKey.Columns
	if len(cols) == 1 {
		return builder.In(cols[0], pkValues(table, rows)...), nil
	}
	alternatives := make([]builder.Condition, 0, len(rows))
	for i, row := range rows {
		eqs := make([]builder.Condition, len(cols))
		for j, c := range cols {
			eqs[j] = builder.Eq(c, row[c])
		}
		alt := builder.Group(eqs...)
		if i > 0 {
			alt = builder.Or(alt)
		}
		alternatives = append(alternatives, alt)
	}
	if len(alternatives) == 0 {
		return builder.In(cols[0]), nil
	}
	return builder.Group(alternatives...), nil
}

// pkValues lists the single-column primary key of each row.
func pkValues(table *schema.TableMetadata, rows []store.Row) []interface{} {
	pk := table.PrimaryKey.Columns[0]
	out := make([]interface{}, len(rows))
	for i, row := range rows {
		out[i] = row[pk]
	}
	return out
}
