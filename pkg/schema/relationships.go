package schema

import (
	"fmt"
	"reflect"
)

// RelationType is the cardinality of a relationship field.
type RelationType string

const (
	BelongsTo  RelationType = "belongsTo"
	HasOne     RelationType = "hasOne"
	HasMany    RelationType = "hasMany"
	ManyToMany RelationType = "manyToMany"
)

// RelationshipMetadata describes a navigable relationship field on a model.
//
// For belongsTo the foreign key lives on the source table and references a
// column of the target. For hasOne/hasMany it lives on the target table.
type RelationshipMetadata struct {
	Type        RelationType
	SourceTable string
	SourceField string
	TargetTable string
	TargetType  reflect.Type
	ForeignKey  string
	References  string
	JoinTable   string
}

// IsToOne reports whether the relationship resolves to a single record.
func (r *RelationshipMetadata) IsToOne() bool {
	return r.Type == BelongsTo || r.Type == HasOne
}

// ParseRelationships extracts relationship metadata from struct fields.
func (p *Parser) ParseRelationships(modelType reflect.Type, table *TableMetadata) error {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return fmt.Errorf("model must be a struct")
	}

	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		tagValue := field.Tag.Get(StructTagKey)
		if !field.IsExported() || tagValue == "" {
			continue
		}
		tagOpts, err := p.parseTag(tagValue)
		if err != nil || !tagOpts.IsRelationship() {
			continue
		}
		rel, err := p.parseRelationship(field, tagOpts, table)
		if err != nil {
			return fmt.Errorf("failed to parse relationship for field %s: %w", field.Name, err)
		}
		table.Relationships = append(table.Relationships, *rel)
	}
	return nil
}

func (p *Parser) parseRelationship(field reflect.StructField, opts *TagOptions, source *TableMetadata) (*RelationshipMetadata, error) {
	rel := &RelationshipMetadata{
		SourceTable: source.Name,
		SourceField: field.Name,
		ForeignKey:  opts.Get("foreignKey"),
		References:  opts.Get("references"),
		JoinTable:   opts.Get("joinTable"),
	}
	switch {
	case opts.Has("belongsTo"):
		rel.Type = BelongsTo
	case opts.Has("hasOne"):
		rel.Type = HasOne
	case opts.Has("hasMany"):
		rel.Type = HasMany
	case opts.Has("manyToMany"):
		rel.Type = ManyToMany
	}

	target := field.Type
	if target.Kind() == reflect.Slice {
		target = target.Elem()
	}
	for target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	if target.Kind() != reflect.Struct {
		return nil, fmt.Errorf("relationship target must be a struct, got %s", target.Kind())
	}
	rel.TargetType = target
	rel.TargetTable = p.extractTableName(target)

	if rel.ForeignKey == "" {
		switch rel.Type {
		case BelongsTo:
			rel.ForeignKey = toSnakeCase(target.Name()) + "_id"
		case HasOne, HasMany:
			rel.ForeignKey = toSnakeCase(source.GoType.Name()) + "_id"
		}
	}
	if rel.References == "" {
		rel.References = "id"
	}
	if rel.Type == ManyToMany && rel.JoinTable == "" {
		a, b := source.Name, rel.TargetTable
		if a > b {
			a, b = b, a
		}
		rel.JoinTable = a + "_" + b
	}
	return rel, nil
}

// GetRelationship returns a relationship by source field name.
func (t *TableMetadata) GetRelationship(fieldName string) *RelationshipMetadata {
	for i := range t.Relationships {
		if t.Relationships[i].SourceField == fieldName {
			return &t.Relationships[i]
		}
	}
	return nil
}
