// Package schema describes models as table metadata parsed from `po` struct tags.
package schema

import (
	"reflect"
	"slices"
	"time"
)

// TableMetadata describes a registered model.
type TableMetadata struct {
	Name          string
	GoType        reflect.Type
	Columns       []ColumnMetadata
	PrimaryKey    *PrimaryKeyMetadata
	ForeignKeys   []ForeignKeyMetadata
	Constraints   []ConstraintMetadata
	Relationships []RelationshipMetadata

	// SoftDelete is nil for models that are removed physically.
	SoftDelete *SoftDeleteMetadata

	// RestoreOnCreate makes Create revive a soft-deleted row that collides
	// on a unique key instead of failing.
	RestoreOnCreate bool

	// Junction marks auto-created link tables. Observers never fire for them.
	Junction bool
}

// ColumnMetadata describes a single column.
type ColumnMetadata struct {
	Name          string
	GoField       string
	GoType        reflect.Type
	SQLType       string
	Nullable      bool
	Default       *string
	Unique        bool
	AutoIncrement bool
	Identity      *IdentityColumn
	Position      int

	// FieldIndex is the reflect index path of the field, which may pass
	// through embedded structs. Empty for metadata built from source.
	FieldIndex []int
}

// PrimaryKeyMetadata describes the primary key of a table.
type PrimaryKeyMetadata struct {
	Name    string
	Columns []string
}

// ReferenceAction is the ON DELETE/ON UPDATE behaviour of a foreign key.
type ReferenceAction string

const (
	Cascade    ReferenceAction = "CASCADE"
	Restrict   ReferenceAction = "RESTRICT"
	SetNull    ReferenceAction = "SET NULL"
	SetDefault ReferenceAction = "SET DEFAULT"
	NoAction   ReferenceAction = "NO ACTION"
)

// ForeignKeyMetadata describes an outgoing foreign key.
type ForeignKeyMetadata struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          ReferenceAction
	OnUpdate          ReferenceAction
}

// ConstraintType identifies a table constraint.
type ConstraintType string

const (
	UniqueConstraint ConstraintType = "UNIQUE"
	CheckConstraint  ConstraintType = "CHECK"
)

// ConstraintMetadata describes a table-level constraint.
type ConstraintMetadata struct {
	Name       string
	Type       ConstraintType
	Columns    []string
	Expression string
}

// IdentityGeneration is the GENERATED clause of an identity column.
type IdentityGeneration string

const (
	IdentityAlways    IdentityGeneration = "ALWAYS"
	IdentityByDefault IdentityGeneration = "BY DEFAULT"
)

// IdentityColumn describes a GENERATED ... AS IDENTITY column.
type IdentityColumn struct {
	Generation IdentityGeneration
}

// SoftDeleteMetadata describes the removed-at marker of a soft-deletable model.
type SoftDeleteMetadata struct {
	Column  string
	GoField string

	// Unset is the value meaning "live". Nil stands for SQL NULL.
	Unset any
}

// IsUnset reports whether v holds the live marker.
func (s *SoftDeleteMetadata) IsUnset(v any) bool {
	if s.Unset == nil {
		return isNil(v)
	}
	if u, ok := s.Unset.(time.Time); ok {
		switch t := v.(type) {
		case time.Time:
			return t.Equal(u)
		case *time.Time:
			return t != nil && t.Equal(u)
		}
	}
	return reflect.DeepEqual(v, s.Unset)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// IsSoftDeletable reports whether rows of the table carry a removed-at marker.
func (t *TableMetadata) IsSoftDeletable() bool {
	return t != nil && t.SoftDelete != nil
}

// GetColumnByName returns the column with the given SQL name.
func (t *TableMetadata) GetColumnByName(name string) *ColumnMetadata {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// GetColumnByField returns the column mapped to the given Go field.
func (t *TableMetadata) GetColumnByField(field string) *ColumnMetadata {
	for i := range t.Columns {
		if t.Columns[i].GoField == field {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns column names in declaration order.
func (t *TableMetadata) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKeyColumn returns the single primary key column, or nil when the
// table has no primary key or a composite one.
func (t *TableMetadata) PrimaryKeyColumn() *ColumnMetadata {
	if t.PrimaryKey == nil || len(t.PrimaryKey.Columns) != 1 {
		return nil
	}
	return t.GetColumnByName(t.PrimaryKey.Columns[0])
}

// ForeignKeyFor returns the foreign key declared on column, if any.
func (t *TableMetadata) ForeignKeyFor(column string) *ForeignKeyMetadata {
	for i := range t.ForeignKeys {
		if slices.Contains(t.ForeignKeys[i].Columns, column) {
			return &t.ForeignKeys[i]
		}
	}
	return nil
}

// UniqueKeys returns every unique column set of the table, single-column
// unique columns first.
func (t *TableMetadata) UniqueKeys() [][]string {
	var keys [][]string
	for _, c := range t.Columns {
		if c.Unique {
			keys = append(keys, []string{c.Name})
		}
	}
	for _, c := range t.Constraints {
		if c.Type == UniqueConstraint && len(c.Columns) > 1 {
			keys = append(keys, c.Columns)
		}
	}
	return keys
}
