package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// StructTagKey is the key used in struct tags (e.g., `po:"..."`).
	StructTagKey = "po"
)

// Parser parses struct definitions to extract table metadata.
type Parser struct {
	typeMapper *TypeMapper
	cache      map[reflect.Type]*TableMetadata
	groups     []uniqueMember
}

type uniqueMember struct {
	table  *TableMetadata
	group  string
	column string
}

var timeType = reflect.TypeOf(time.Time{})

// NewParser creates a new Parser instance.
func NewParser() *Parser {
	return &Parser{
		typeMapper: DefaultTypeMapper,
		cache:      make(map[reflect.Type]*TableMetadata),
	}
}

var (
	tableNamesMu     sync.RWMutex
	customTableNames = make(map[string]string) // struct name -> table name
)

// RegisterTableName overrides the table name derived for a struct.
//
//	func init() {
//	    schema.RegisterTableName("Tenant", "tenants")
//	}
func RegisterTableName(structName, tableName string) {
	tableNamesMu.Lock()
	defer tableNamesMu.Unlock()
	customTableNames[structName] = tableName
}

// Parse extracts TableMetadata from a Go struct type.
func (p *Parser) Parse(modelType reflect.Type) (*TableMetadata, error) {
	// Dereference pointer types
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}
	if cached, ok := p.cache[modelType]; ok {
		return cached, nil
	}
	table := &TableMetadata{
		Name:        p.extractTableName(modelType),
		GoType:      modelType,
		Columns:     make([]ColumnMetadata, 0),
		ForeignKeys: make([]ForeignKeyMetadata, 0),
		Constraints: make([]ConstraintMetadata, 0),
	}
	if err := p.parseFields(modelType, nil, table); err != nil {
		return nil, err
	}
	p.collectUniqueGroups(table)

	if err := p.ParseRelationships(modelType, table); err != nil {
		return nil, fmt.Errorf("failed to parse relationships: %w", err)
	}

	model := reflect.New(modelType).Interface()
	if r, ok := model.(interface{ RestoreOnCreate() bool }); ok {
		table.RestoreOnCreate = r.RestoreOnCreate()
	}
	if j, ok := model.(interface{ Junction() bool }); ok {
		table.Junction = j.Junction()
	}

	if err := Validate(table); err != nil {
		return nil, err
	}
	p.cache[modelType] = table
	return table, nil
}

// parseFields walks the struct fields, descending into untagged embedded
// structs so that mixins like Permanent contribute their columns.
func (p *Parser) parseFields(modelType reflect.Type, index []int, table *TableMetadata) error {
	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		path := append(slices.Clone(index), i)

		tagValue := field.Tag.Get(StructTagKey)
		if field.Anonymous && tagValue == "" {
			ft := field.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && ft != timeType {
				if err := p.parseFields(ft, path, table); err != nil {
					return err
				}
			}
			continue
		}
		if !field.IsExported() || tagValue == "" || tagValue == "-" {
			continue
		}

		tagOpts, err := p.parseTag(tagValue)
		if err != nil {
			return fmt.Errorf("failed to parse tag for field %s: %w", field.Name, err)
		}
		// Relationships are handled in relationships.go
		if p.isRelationshipTag(tagOpts) {
			continue
		}

		column := p.createColumnMetadata(field, tagOpts, len(table.Columns))
		column.FieldIndex = path

		if tagOpts.Has("primaryKey") {
			if table.PrimaryKey == nil {
				table.PrimaryKey = &PrimaryKeyMetadata{
					Columns: []string{column.Name},
					Name:    table.Name + "_pkey",
				}
			} else {
				table.PrimaryKey.Columns = append(table.PrimaryKey.Columns, column.Name)
			}
		}

		if tagOpts.Has("softDelete") {
			if table.SoftDelete != nil {
				return fmt.Errorf("model %s declares more than one softDelete column", table.Name)
			}
			if !IsTimestamp(field.Type) {
				return fmt.Errorf("model %s: softDelete field %s must be a time.Time, *time.Time or sql.NullTime", table.Name, field.Name)
			}
			unset, err := ParseUnset(tagOpts.Get("softDelete"))
			if err != nil {
				return fmt.Errorf("model %s: %w", table.Name, err)
			}
			table.SoftDelete = &SoftDeleteMetadata{
				Column:  column.Name,
				GoField: field.Name,
				Unset:   unset,
			}
		}

		if fk, ok := parseForeignKey(table.Name, column.Name, tagOpts); ok {
			table.ForeignKeys = append(table.ForeignKeys, fk)
		}

		table.Columns = append(table.Columns, column)
		if group := tagOpts.Get("uniqueGroup"); group != "" {
			p.groups = append(p.groups, uniqueMember{table: table, group: group, column: column.Name})
		}
	}
	return nil
}

// collectUniqueGroups turns uniqueGroup:name options into composite UNIQUE constraints.
func (p *Parser) collectUniqueGroups(table *TableMetadata) {
	byGroup := make(map[string][]string)
	var order []string
	rest := p.groups[:0]
	for _, m := range p.groups {
		if m.table != table {
			rest = append(rest, m)
			continue
		}
		if _, ok := byGroup[m.group]; !ok {
			order = append(order, m.group)
		}
		byGroup[m.group] = append(byGroup[m.group], m.column)
	}
	p.groups = rest
	for _, g := range order {
		table.Constraints = append(table.Constraints, ConstraintMetadata{
			Name:    fmt.Sprintf("%s_%s_key", table.Name, g),
			Type:    UniqueConstraint,
			Columns: byGroup[g],
		})
	}
}

// TableNamer lets a model choose its own table name.
type TableNamer interface {
	TableName() string
}

// extractTableName resolves the table name of a model: a TableName method
// wins, then names registered with RegisterTableName, then snake_case.
func (p *Parser) extractTableName(modelType reflect.Type) string {
	if namer, ok := reflect.New(modelType).Interface().(TableNamer); ok {
		if name := namer.TableName(); name != "" {
			return name
		}
	}
	structName := modelType.Name()
	tableNamesMu.RLock()
	tableName, ok := customTableNames[structName]
	tableNamesMu.RUnlock()
	if ok {
		return tableName
	}
	return toSnakeCase(structName)
}

// createColumnMetadata creates a ColumnMetadata from a struct field.
func (p *Parser) createColumnMetadata(field reflect.StructField, opts *TagOptions, position int) ColumnMetadata {
	column := ColumnMetadata{
		Name:     opts.Name,
		GoField:  field.Name,
		GoType:   field.Type,
		Position: position,
	}
	// Determine SQL type
	if sqlType := opts.GetSQLType(); sqlType != "" {
		column.SQLType = sqlType
	} else {
		column.SQLType = p.typeMapper.GoTypeToPostgreSQL(field.Type)
	}
	// Set nullability
	column.Nullable = !opts.Has("notNull") && !opts.Has("primaryKey")
	if IsNullable(field.Type) {
		column.Nullable = true
	}
	// Set default value
	if defaultVal := opts.Get("default"); defaultVal != "" {
		column.Default = &defaultVal
	}
	// Set unique constraint
	column.Unique = opts.Has("unique")
	// Set auto-increment (legacy serial)
	column.AutoIncrement = opts.Has("autoIncrement") || opts.Has("serial")

	if opts.Has("identity") || opts.Has("identityAlways") {
		column.Identity = &IdentityColumn{
			Generation: IdentityAlways,
		}
	} else if opts.Has("identityByDefault") {
		column.Identity = &IdentityColumn{
			Generation: IdentityByDefault,
		}
	}
	return column
}

func (p *Parser) isRelationshipTag(opts *TagOptions) bool {
	return opts.IsRelationship()
}

// IsRelationship reports whether the options describe a relationship field
// rather than a column.
func (t *TagOptions) IsRelationship() bool {
	return t.Has("belongsTo") || t.Has("hasOne") || t.Has("hasMany") || t.Has("manyToMany")
}

// TagOptions represents parsed tag options.
type TagOptions struct {
	Name    string            // Column name (first element)
	Options map[string]string // Other options
}

func (p *Parser) parseTag(tag string) (*TagOptions, error) {
	return ParseTag(tag)
}

// ParseTag parses a `po` tag value into TagOptions.
// Format: "column_name,option1,option2(value),key:value"
func ParseTag(tag string) (*TagOptions, error) {
	parts := splitTag(tag)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty tag value")
	}
	opts := &TagOptions{
		Name:    parts[0],
		Options: make(map[string]string),
	}
	// Parse remaining options
	for i := 1; i < len(parts); i++ {
		opt := parts[i]
		// Check if option has a value: option(value) or option:value.
		// fk:users(id) is a colon option whose value carries parentheses.
		colon := strings.Index(opt, ":")
		paren := strings.Index(opt, "(")
		if colon != -1 && (paren == -1 || colon < paren) {
			opts.Options[opt[:colon]] = opt[colon+1:]
		} else if idx := paren; idx != -1 {
			if !strings.HasSuffix(opt, ")") {
				return nil, fmt.Errorf("invalid option format: %s", opt)
			}
			key := opt[:idx]
			value := opt[idx+1 : len(opt)-1]
			opts.Options[key] = value
		} else {
			// Boolean option
			opts.Options[opt] = ""
		}
	}
	return opts, nil
}

// Has checks if an option exists.
func (t *TagOptions) Has(key string) bool {
	_, ok := t.Options[key]
	return ok
}

// Get returns the value of an option.
func (t *TagOptions) Get(key string) string {
	return t.Options[key]
}

// GetSQLType returns the SQL type from tag options.
// Checks for: uuid, varchar(n), text, numeric(p,s), smallint, integer, bigint, etc.
func (t *TagOptions) GetSQLType() string {
	// Check common PostgreSQL types
	pgTypes := []string{
		"uuid", "varchar", "text", "char",
		"smallint", "integer", "bigint", "serial", "bigserial",
		"numeric", "decimal", "real", "double precision",
		"boolean", "bool",
		"date", "time", "timestamp", "timestamptz", "interval",
		"json", "jsonb",
		"bytea",
		"inet", "cidr", "macaddr",
		"point", "line", "lseg", "box", "path", "polygon", "circle",
		"tsvector", "tsquery",
	}
	for _, pgType := range pgTypes {
		if t.Has(pgType) {
			// If the type has a parameter (e.g., varchar(255))
			if value := t.Get(pgType); value != "" {
				return fmt.Sprintf("%s(%s)", pgType, value)
			}
			return pgType
		}
	}
	return ""
}

// splitTag splits a tag value by commas, handling nested parentheses.
func splitTag(tag string) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for _, ch := range tag {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// ToSnakeCase converts PascalCase to snake_case.
func ToSnakeCase(s string) string {
	return toSnakeCase(s)
}

func toSnakeCase(s string) string {
	var result strings.Builder
	for i, ch := range s {
		if i > 0 && ch >= 'A' && ch <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(ch)
	}
	return strings.ToLower(result.String())
}

var tableNameDirective = regexp.MustCompile(`table_name:\s*([a-zA-Z0-9_]+)`)

// ParseTableNameFromComment extracts table name from a comment.
// Format: // table_name: custom_table_name
func ParseTableNameFromComment(comment string) string {
	matches := tableNameDirective.FindStringSubmatch(comment)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}

// parseForeignKey reads fk:table(column) or fk:table.column from column options.
func parseForeignKey(tableName, columnName string, opts *TagOptions) (ForeignKeyMetadata, bool) {
	refTable, refColumn := ParseReference(opts.Get("fk"))
	if refTable == "" || refColumn == "" {
		return ForeignKeyMetadata{}, false
	}
	return ForeignKeyMetadata{
		Name:              fmt.Sprintf("fk_%s_%s_%s", tableName, columnName, refTable),
		Columns:           []string{columnName},
		ReferencedTable:   refTable,
		ReferencedColumns: []string{refColumn},
		OnDelete:          ParseReferenceAction(opts.Get("onDelete")),
		OnUpdate:          ParseReferenceAction(opts.Get("onUpdate")),
	}, true
}

// ParseReference splits "table(column)" or "table.column".
func ParseReference(ref string) (table, column string) {
	if idx := strings.Index(ref, "("); idx > 0 && strings.HasSuffix(ref, ")") {
		return ref[:idx], ref[idx+1 : len(ref)-1]
	}
	if parts := strings.SplitN(ref, ".", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", ""
}

// ParseReferenceAction converts a tag value to a ReferenceAction.
func ParseReferenceAction(action string) ReferenceAction {
	if action == "" {
		return NoAction
	}

	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(action), "_", "")) {
	case "CASCADE":
		return Cascade
	case "RESTRICT":
		return Restrict
	case "SETNULL", "SET NULL":
		return SetNull
	case "SETDEFAULT", "SET DEFAULT":
		return SetDefault
	case "NOACTION", "NO ACTION":
		return NoAction
	default:
		return NoAction
	}
}
