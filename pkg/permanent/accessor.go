package permanent

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/marshallshelly/pebble-permanent/pkg/runtime"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

// Accessor reads and writes the columns of one record, whether it is a
// model struct or a store.Row.
type Accessor interface {
	// Get returns the column value with pointers dereferenced; ok is false
	// for unknown columns.
	Get(column string) (value any, ok bool)
	// Set assigns a column value, converting it to the field type.
	Set(column string, value any) error
}

// AccessorFor wraps record, which must be a pointer to a model struct of
// table or a store.Row.
func AccessorFor(table *schema.TableMetadata, record any) (Accessor, error) {
	switch r := record.(type) {
	case store.Row:
		return rowAccessor(r), nil
	case map[string]any:
		return rowAccessor(r), nil
	}
	v := reflect.ValueOf(record)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: expected a pointer to %s struct, got %T", runtime.ErrInvalidModel, table.Name, record)
	}
	return &structAccessor{table: table, v: v.Elem()}, nil
}

type rowAccessor store.Row

func (r rowAccessor) Get(column string) (any, bool) {
	v, ok := r[column]
	return indirect(v), ok
}

func (r rowAccessor) Set(column string, value any) error {
	r[column] = value
	return nil
}

type structAccessor struct {
	table *schema.TableMetadata
	v     reflect.Value
}

func (s *structAccessor) field(column string) (reflect.Value, bool) {
	col := s.table.GetColumnByName(column)
	if col == nil {
		return reflect.Value{}, false
	}
	if len(col.FieldIndex) > 0 {
		f, err := s.v.FieldByIndexErr(col.FieldIndex)
		return f, err == nil
	}
	f := s.v.FieldByName(col.GoField)
	return f, f.IsValid()
}

func (s *structAccessor) Get(column string) (any, bool) {
	f, ok := s.field(column)
	if !ok {
		return nil, false
	}
	return indirect(f.Interface()), true
}

func (s *structAccessor) Set(column string, value any) error {
	f, ok := s.field(column)
	if !ok {
		return fmt.Errorf("%s has no column %q", s.table.Name, column)
	}
	if !f.CanSet() {
		return fmt.Errorf("field for column %s.%s is not settable", s.table.Name, column)
	}
	if err := assign(f, value); err != nil {
		return fmt.Errorf("column %s.%s: %w", s.table.Name, column, err)
	}
	return nil
}

// assign stores v in field, allocating pointers and converting between
// compatible kinds.
func assign(field reflect.Value, v any) error {
	if v == nil {
		field.SetZero()
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}
	if field.Kind() == reflect.Pointer {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			field.SetZero()
			return nil
		}
		elem := reflect.New(field.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			field.SetZero()
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}
	if convertible(rv, field.Type()) {
		field.Set(rv.Convert(field.Type()))
		return nil
	}
	if scanner, ok := field.Addr().Interface().(sql.Scanner); ok {
		return scanner.Scan(rv.Interface())
	}
	return fmt.Errorf("cannot assign %s to %s", rv.Type(), field.Type())
}

// convertible excludes the numeric-to-string conversions reflect allows.
func convertible(v reflect.Value, to reflect.Type) bool {
	if !v.Type().ConvertibleTo(to) {
		return false
	}
	if to.Kind() == reflect.String {
		return v.Kind() == reflect.String || (v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8)
	}
	return true
}

func indirect(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

// decode builds a T from a result row. Columns missing from row keep their
// zero value.
func decode[T any](table *schema.TableMetadata, row store.Row) (T, error) {
	var out T
	acc, err := AccessorFor(table, &out)
	if err != nil {
		return out, err
	}
	for column, v := range row {
		if table.GetColumnByName(column) == nil {
			continue
		}
		if err := acc.Set(column, v); err != nil {
			return out, err
		}
	}
	return out, nil
}

// snapshot copies every column of record into a Row.
func snapshot(table *schema.TableMetadata, acc Accessor) store.Row {
	row := make(store.Row, len(table.Columns))
	for _, col := range table.Columns {
		v, _ := acc.Get(col.Name)
		row[col.Name] = v
	}
	return row
}

// load copies every column of row onto acc.
func load(table *schema.TableMetadata, acc Accessor, row store.Row) error {
	for _, col := range table.Columns {
		v, ok := row[col.Name]
		if !ok {
			continue
		}
		if err := acc.Set(col.Name, v); err != nil {
			return err
		}
	}
	return nil
}
