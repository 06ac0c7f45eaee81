// Package loader builds table metadata from Go source files, for tools that
// inspect models without compiling them.
package loader

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// ModelRegistrar is an interface for registering table metadata
type ModelRegistrar interface {
	RegisterMetadata(table *schema.TableMetadata) error
}

// permanentMixin is the embedded struct that makes a model soft-deletable.
const permanentMixin = "Permanent"

// LoadModelsFromPath scans a file or directory for Go structs with pebble tags
// and registers them using the provided registrar.
// Supports:
// - Single .go file
// - Directory (scans all .go files recursively)
// - Custom table names from // table_name: comments or TableName methods
// - The embedded Permanent mixin and softDelete columns
// - RestoreOnCreate and Junction marker methods returning true
func LoadModelsFromPath(path string, registrar ModelRegistrar) (int, error) {
	files, err := goFiles(path)
	if err != nil {
		return 0, err
	}

	src := newSource()
	for _, file := range files {
		if err := src.parseFile(file); err != nil {
			return 0, fmt.Errorf("failed to load models from %s: %w", file, err)
		}
	}

	modelsRegistered := 0
	for _, m := range src.models {
		if !src.hasPebbleTags(m.structType) {
			continue
		}
		table, err := src.buildTable(m)
		if err != nil {
			return modelsRegistered, fmt.Errorf("%s: %w", m.file, err)
		}
		if err := registrar.RegisterMetadata(table); err != nil {
			return modelsRegistered, fmt.Errorf("failed to register %s: %w", m.name, err)
		}
		modelsRegistered++
	}
	return modelsRegistered, nil
}

func goFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var files []string
	if info.IsDir() {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".go") && !strings.HasSuffix(d.Name(), "_test.go") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory: %w", err)
		}
	} else {
		if !strings.HasSuffix(path, ".go") {
			return nil, fmt.Errorf("file must have .go extension")
		}
		files = append(files, path)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no .go files found in %s", path)
	}
	return files, nil
}

type model struct {
	name       string
	file       string
	tableName  string
	structType *ast.StructType
}

// source collects every struct and marker method across the scanned files,
// so methods and mixins declared in another file still apply.
type source struct {
	models  []*model
	structs map[string]*ast.StructType
	methods map[string]map[string]ast.Expr // type -> method -> returned literal
}

func newSource() *source {
	return &source{
		structs: make(map[string]*ast.StructType),
		methods: make(map[string]map[string]ast.Expr),
	}
}

func (s *source) parseFile(filename string) error {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filename, nil, parser.ParseComments)
	if err != nil {
		return fmt.Errorf("failed to parse file: %w", err)
	}

	for _, decl := range node.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok == token.TYPE {
				s.addTypes(filename, d)
			}
		case *ast.FuncDecl:
			s.addMethod(d)
		}
	}
	return nil
}

func (s *source) addTypes(filename string, decl *ast.GenDecl) {
	for _, spec := range decl.Specs {
		typeSpec, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		structType, ok := typeSpec.Type.(*ast.StructType)
		if !ok {
			continue
		}
		name := typeSpec.Name.Name
		s.structs[name] = structType

		m := &model{name: name, file: filename, structType: structType}
		for _, doc := range []*ast.CommentGroup{decl.Doc, typeSpec.Doc} {
			if doc == nil || m.tableName != "" {
				continue
			}
			for _, comment := range doc.List {
				if custom := schema.ParseTableNameFromComment(comment.Text); custom != "" {
					m.tableName = custom
					break
				}
			}
		}
		s.models = append(s.models, m)
	}
}

// addMethod records single-statement methods of the form
// `func (T) Name() X { return literal }`.
func (s *source) addMethod(fn *ast.FuncDecl) {
	if fn.Recv == nil || len(fn.Recv.List) != 1 || fn.Body == nil || len(fn.Body.List) != 1 {
		return
	}
	ret, ok := fn.Body.List[0].(*ast.ReturnStmt)
	if !ok || len(ret.Results) != 1 {
		return
	}
	recv := fn.Recv.List[0].Type
	if star, ok := recv.(*ast.StarExpr); ok {
		recv = star.X
	}
	ident, ok := recv.(*ast.Ident)
	if !ok {
		return
	}
	if s.methods[ident.Name] == nil {
		s.methods[ident.Name] = make(map[string]ast.Expr)
	}
	s.methods[ident.Name][fn.Name.Name] = ret.Results[0]
}

func (s *source) returnsTrue(typeName, method string) bool {
	ident, ok := s.methods[typeName][method].(*ast.Ident)
	return ok && ident.Name == "true"
}

func (s *source) tableName(m *model) string {
	if lit, ok := s.methods[m.name]["TableName"].(*ast.BasicLit); ok && lit.Kind == token.STRING {
		if name, err := strconv.Unquote(lit.Value); err == nil && name != "" {
			return name
		}
	}
	if m.tableName != "" {
		return m.tableName
	}
	return schema.ToSnakeCase(m.name)
}

// buildTable creates TableMetadata by walking the struct definition. The
// result carries no Go type.
func (s *source) buildTable(m *model) (*schema.TableMetadata, error) {
	table := &schema.TableMetadata{
		Name:            s.tableName(m),
		Columns:         make([]schema.ColumnMetadata, 0),
		ForeignKeys:     make([]schema.ForeignKeyMetadata, 0),
		Constraints:     make([]schema.ConstraintMetadata, 0),
		RestoreOnCreate: s.returnsTrue(m.name, "RestoreOnCreate"),
		Junction:        s.returnsTrue(m.name, "Junction"),
	}

	b := &tableBuilder{source: s, table: table, groups: make(map[string][]string)}
	if err := b.fields(m.structType, map[string]bool{m.name: true}); err != nil {
		return nil, err
	}
	for _, g := range b.groupOrder {
		table.Constraints = append(table.Constraints, schema.ConstraintMetadata{
			Name:    fmt.Sprintf("%s_%s_key", table.Name, g),
			Type:    schema.UniqueConstraint,
			Columns: b.groups[g],
		})
	}

	if err := schema.Validate(table); err != nil {
		return nil, err
	}
	return table, nil
}

type tableBuilder struct {
	source     *source
	table      *schema.TableMetadata
	groups     map[string][]string
	groupOrder []string
}

func (b *tableBuilder) fields(structType *ast.StructType, seen map[string]bool) error {
	if structType.Fields == nil {
		return nil
	}
	for _, field := range structType.Fields.List {
		tag := poTag(field)
		if tag == "-" {
			continue
		}

		if len(field.Names) == 0 {
			if tag == "" {
				if err := b.embedded(field.Type, seen); err != nil {
					return err
				}
				continue
			}
			if err := b.column(embeddedName(field.Type), field.Type, tag); err != nil {
				return err
			}
			continue
		}

		if tag == "" {
			continue
		}
		for _, name := range field.Names {
			if !name.IsExported() {
				continue
			}
			if err := b.column(name.Name, field.Type, tag); err != nil {
				return err
			}
		}
	}
	return nil
}

// embedded descends into an untagged embedded struct. schema.Permanent is
// known without its source; other mixins must be among the scanned files.
func (b *tableBuilder) embedded(expr ast.Expr, seen map[string]bool) error {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	switch t := expr.(type) {
	case *ast.SelectorExpr:
		if t.Sel.Name == permanentMixin {
			return b.permanent()
		}
	case *ast.Ident:
		if st, ok := b.source.structs[t.Name]; ok && !seen[t.Name] {
			seen[t.Name] = true
			return b.fields(st, seen)
		}
		if t.Name == permanentMixin {
			return b.permanent()
		}
	}
	return nil
}

func (b *tableBuilder) permanent() error {
	return b.column("Removed", &ast.StarExpr{X: &ast.SelectorExpr{X: ast.NewIdent("time"), Sel: ast.NewIdent("Time")}},
		"removed,timestamptz,softDelete")
}

func (b *tableBuilder) column(goField string, typ ast.Expr, tag string) error {
	opts, err := schema.ParseTag(tag)
	if err != nil {
		return fmt.Errorf("failed to parse tag for field %s: %w", goField, err)
	}
	// Relationship fields are resolved at runtime, not from source.
	if opts.IsRelationship() {
		return nil
	}

	table := b.table
	column := schema.ColumnMetadata{
		Name:     opts.Name,
		GoField:  goField,
		Position: len(table.Columns),
	}

	column.SQLType = opts.GetSQLType()
	if column.SQLType == "" {
		column.SQLType = sqlTypeOf(typ)
	}

	column.Nullable = !opts.Has("notNull") && !opts.Has("primaryKey")
	if nullableExpr(typ) {
		column.Nullable = true
	}
	column.Unique = opts.Has("unique")
	column.AutoIncrement = opts.Has("serial") || opts.Has("bigserial") || opts.Has("autoIncrement")

	if opts.Has("identity") || opts.Has("identityAlways") {
		column.Identity = &schema.IdentityColumn{Generation: schema.IdentityAlways}
		column.Nullable = false
	} else if opts.Has("identityByDefault") {
		column.Identity = &schema.IdentityColumn{Generation: schema.IdentityByDefault}
		column.Nullable = false
	}

	if defaultVal := opts.Get("default"); defaultVal != "" {
		column.Default = &defaultVal
	}

	if opts.Has("primaryKey") {
		if table.PrimaryKey == nil {
			table.PrimaryKey = &schema.PrimaryKeyMetadata{
				Columns: []string{column.Name},
				Name:    table.Name + "_pkey",
			}
		} else {
			table.PrimaryKey.Columns = append(table.PrimaryKey.Columns, column.Name)
		}
	}

	if opts.Has("softDelete") {
		if table.SoftDelete != nil {
			return fmt.Errorf("model %s declares more than one softDelete column", table.Name)
		}
		unset, err := schema.ParseUnset(opts.Get("softDelete"))
		if err != nil {
			return fmt.Errorf("model %s: %w", table.Name, err)
		}
		table.SoftDelete = &schema.SoftDeleteMetadata{Column: column.Name, GoField: goField, Unset: unset}
	}

	if refTable, refColumn := schema.ParseReference(opts.Get("fk")); refTable != "" && refColumn != "" {
		table.ForeignKeys = append(table.ForeignKeys, schema.ForeignKeyMetadata{
			Name:              fmt.Sprintf("fk_%s_%s_%s", table.Name, column.Name, refTable),
			Columns:           []string{column.Name},
			ReferencedTable:   refTable,
			ReferencedColumns: []string{refColumn},
			OnDelete:          schema.ParseReferenceAction(opts.Get("onDelete")),
			OnUpdate:          schema.ParseReferenceAction(opts.Get("onUpdate")),
		})
	}

	if group := opts.Get("uniqueGroup"); group != "" {
		if _, ok := b.groups[group]; !ok {
			b.groupOrder = append(b.groupOrder, group)
		}
		b.groups[group] = append(b.groups[group], column.Name)
	}

	table.Columns = append(table.Columns, column)
	return nil
}

func poTag(field *ast.Field) string {
	if field.Tag == nil {
		return ""
	}
	raw, err := strconv.Unquote(field.Tag.Value)
	if err != nil {
		return ""
	}
	return reflect.StructTag(raw).Get(schema.StructTagKey)
}

func embeddedName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return embeddedName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// sqlTypeOf maps the common field types to PostgreSQL, defaulting to text.
func sqlTypeOf(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return sqlTypeOf(t.X)
	case *ast.ArrayType:
		if ident, ok := t.Elt.(*ast.Ident); ok && t.Len == nil && (ident.Name == "byte" || ident.Name == "uint8") {
			return "bytea"
		}
		return "jsonb"
	case *ast.MapType:
		return "jsonb"
	case *ast.SelectorExpr:
		switch t.Sel.Name {
		case "Time":
			return "timestamptz"
		case "Duration":
			return "bigint"
		case "UUID":
			return "uuid"
		case "NullString":
			return "text"
		case "NullInt64":
			return "bigint"
		case "NullInt32":
			return "integer"
		case "NullBool":
			return "boolean"
		case "NullFloat64":
			return "double precision"
		case "NullTime":
			return "timestamptz"
		}
	case *ast.Ident:
		switch t.Name {
		case "int", "int64", "uint", "uint64":
			return "bigint"
		case "int32", "uint32":
			return "integer"
		case "int16", "uint16", "int8", "uint8":
			return "smallint"
		case "bool":
			return "boolean"
		case "float64":
			return "double precision"
		case "float32":
			return "real"
		}
	}
	return "text"
}

func nullableExpr(expr ast.Expr) bool {
	switch t := expr.(type) {
	case *ast.StarExpr, *ast.MapType:
		return true
	case *ast.ArrayType:
		return t.Len == nil
	case *ast.SelectorExpr:
		return strings.HasPrefix(t.Sel.Name, "Null")
	}
	return false
}

// hasPebbleTags reports whether a struct maps to a table: some field carries
// a po tag, or it embeds the Permanent mixin.
func (s *source) hasPebbleTags(structType *ast.StructType) bool {
	if structType.Fields == nil {
		return false
	}
	for _, field := range structType.Fields.List {
		if tag := poTag(field); tag != "" && tag != "-" {
			return true
		}
		if len(field.Names) == 0 && poTag(field) == "" && embeddedName(field.Type) == permanentMixin {
			if _, local := s.structs[permanentMixin]; !local {
				return true
			}
		}
	}
	return false
}
