package schema

import (
	"database/sql"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// TypeMapper picks the PostgreSQL type of a column whose tag names none.
type TypeMapper struct {
	mu     sync.RWMutex
	custom map[reflect.Type]string
}

// NewTypeMapper creates a new TypeMapper instance.
func NewTypeMapper() *TypeMapper {
	return &TypeMapper{custom: make(map[reflect.Type]string)}
}

// RegisterType maps goType to pgType, overriding the built-in mapping.
func (tm *TypeMapper) RegisterType(goType reflect.Type, pgType string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.custom[goType] = pgType
}

var kindTypes = map[reflect.Kind]string{
	reflect.Bool:    "boolean",
	reflect.Int8:    "smallint",
	reflect.Int16:   "smallint",
	reflect.Uint8:   "smallint",
	reflect.Int:     "integer",
	reflect.Int32:   "integer",
	reflect.Uint16:  "integer",
	reflect.Int64:   "bigint",
	reflect.Uint32:  "bigint",
	reflect.Uint64:  "bigint",
	reflect.Float32: "real",
	reflect.Float64: "double precision",
	reflect.String:  "text",
}

var (
	nullTimeType = reflect.TypeOf(sql.NullTime{})

	structTypes = map[reflect.Type]string{
		timeType:                         "timestamptz",
		nullTimeType:                     "timestamptz",
		reflect.TypeOf(sql.NullString{}):  "text",
		reflect.TypeOf(sql.NullInt64{}):   "bigint",
		reflect.TypeOf(sql.NullInt32{}):   "integer",
		reflect.TypeOf(sql.NullFloat64{}): "double precision",
		reflect.TypeOf(sql.NullBool{}):    "boolean",
	}
)

// GoTypeToPostgreSQL maps a Go type to its PostgreSQL equivalent, or ""
// when the tag has to name the type.
func (tm *TypeMapper) GoTypeToPostgreSQL(t reflect.Type) string {
	tm.mu.RLock()
	pgType, ok := tm.custom[t]
	tm.mu.RUnlock()
	if ok {
		return pgType
	}

	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if pgType, ok := structTypes[t]; ok {
		return pgType
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return "bytea"
	}
	return kindTypes[t.Kind()]
}

// IsNullable reports whether a Go type can hold SQL NULL.
func IsNullable(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		return true
	}
	_, ok := structTypes[t]
	return ok && t != timeType
}

// IsTimestamp reports whether a field of type t can hold a removed stamp.
func IsTimestamp(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t == timeType || t == nullTimeType
}

// ParseUnset converts the value of a softDelete:<value> option into the
// stamp stored in live rows. An empty value means SQL NULL; "epoch" is the
// Unix epoch, anything else must be RFC 3339.
func ParseUnset(raw string) (any, error) {
	switch raw {
	case "":
		return nil, nil
	case "epoch":
		return time.Unix(0, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid softDelete value %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// DefaultTypeMapper is the global type mapper instance.
var DefaultTypeMapper = NewTypeMapper()
