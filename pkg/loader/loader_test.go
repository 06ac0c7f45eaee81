package loader

import (
	"go/parser"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

type collector struct {
	tables map[string]*schema.TableMetadata
}

func (c *collector) RegisterMetadata(table *schema.TableMetadata) error {
	if c.tables == nil {
		c.tables = make(map[string]*schema.TableMetadata)
	}
	c.tables[table.Name] = table
	return nil
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

const blogModels = `package models

import (
	"time"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// table_name: authors
type Author struct {
	ID    int64  ` + "`po:\"id,primaryKey,bigserial\"`" + `
	Email string ` + "`po:\"email,varchar(320),unique,notNull\"`" + `
	schema.Permanent
}

func (Author) RestoreOnCreate() bool { return true }

type Post struct {
	ID       int64      ` + "`po:\"id,primaryKey,bigserial\"`" + `
	AuthorID int64      ` + "`po:\"author_id,notNull,fk:authors(id),onDelete:cascade\"`" + `
	EditorID *int64     ` + "`po:\"editor_id,fk:authors(id),onDelete:setnull\"`" + `
	Slug     string     ` + "`po:\"slug,text,notNull,uniqueGroup:author_slug\"`" + `
	Tenant   string     ` + "`po:\"tenant,text,notNull,uniqueGroup:author_slug\"`" + `
	Archived *time.Time ` + "`po:\"archived_at,softDelete\"`" + `
	Author   *Author    ` + "`po:\"author,belongsTo,foreignKey:author_id,references:id\"`" + `
	secret   string
}

func (*Post) TableName() string { return "blog_posts" }

type PostTag struct {
	PostID int64 ` + "`po:\"post_id,primaryKey,fk:blog_posts(id),onDelete:cascade\"`" + `
	Tag    string ` + "`po:\"tag,primaryKey,text\"`" + `
}

func (PostTag) Junction() bool { return true }

type notAModel struct {
	Count int
}
`

func TestLoadModelsFromPath(t *testing.T) {
	dir := writeFiles(t, map[string]string{"models.go": blogModels})

	var c collector
	n, err := LoadModelsFromPath(dir, &c)
	if err != nil {
		t.Fatalf("LoadModelsFromPath() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("registered %d models, want 3", n)
	}
	for _, name := range []string{"authors", "blog_posts", "post_tag"} {
		if c.tables[name] == nil {
			t.Errorf("table %s not registered", name)
		}
	}
}

func TestLoadModelsFromPath_PermanentMixin(t *testing.T) {
	dir := writeFiles(t, map[string]string{"models.go": blogModels})

	var c collector
	if _, err := LoadModelsFromPath(dir, &c); err != nil {
		t.Fatal(err)
	}
	authors := c.tables["authors"]
	if !authors.IsSoftDeletable() {
		t.Fatal("authors should be soft-deletable")
	}
	if authors.SoftDelete.Column != "removed" {
		t.Errorf("soft-delete column = %q, want removed", authors.SoftDelete.Column)
	}
	removed := authors.GetColumnByName("removed")
	if removed == nil {
		t.Fatal("removed column not found")
	}
	if removed.SQLType != "timestamptz" || !removed.Nullable {
		t.Errorf("removed column = %s nullable=%v, want nullable timestamptz", removed.SQLType, removed.Nullable)
	}
	if !authors.RestoreOnCreate {
		t.Error("authors should restore on create")
	}
	if keys := authors.UniqueKeys(); len(keys) != 1 || keys[0][0] != "email" {
		t.Errorf("unique keys = %v, want [[email]]", keys)
	}
}

func TestLoadModelsFromPath_Columns(t *testing.T) {
	dir := writeFiles(t, map[string]string{"models.go": blogModels})

	var c collector
	if _, err := LoadModelsFromPath(dir, &c); err != nil {
		t.Fatal(err)
	}
	posts := c.tables["blog_posts"]

	if got := strings.Join(posts.ColumnNames(), ","); got != "id,author_id,editor_id,slug,tenant,archived_at" {
		t.Errorf("columns = %s", got)
	}
	if posts.SoftDelete == nil || posts.SoftDelete.Column != "archived_at" {
		t.Errorf("soft delete = %+v, want archived_at", posts.SoftDelete)
	}
	if col := posts.GetColumnByName("archived_at"); col.SQLType != "timestamptz" {
		t.Errorf("archived_at type = %s, want timestamptz inferred from *time.Time", col.SQLType)
	}
	if col := posts.GetColumnByName("author_id"); col.SQLType != "bigint" || col.Nullable {
		t.Errorf("author_id = %s nullable=%v, want bigint not null", col.SQLType, col.Nullable)
	}
	if col := posts.GetColumnByName("editor_id"); !col.Nullable {
		t.Error("editor_id should be nullable")
	}

	if len(posts.ForeignKeys) != 2 {
		t.Fatalf("expected 2 foreign keys, got %d", len(posts.ForeignKeys))
	}
	fk := posts.ForeignKeyFor("author_id")
	if fk.Name != "fk_blog_posts_author_id_authors" || fk.OnDelete != schema.Cascade {
		t.Errorf("author fk = %s %s", fk.Name, fk.OnDelete)
	}
	if fk := posts.ForeignKeyFor("editor_id"); fk.OnDelete != schema.SetNull {
		t.Errorf("editor fk on delete = %s, want SET NULL", fk.OnDelete)
	}

	if len(posts.Constraints) != 1 {
		t.Fatalf("expected 1 constraint, got %d", len(posts.Constraints))
	}
	c0 := posts.Constraints[0]
	if c0.Name != "blog_posts_author_slug_key" || c0.Type != schema.UniqueConstraint {
		t.Errorf("constraint = %s %s", c0.Name, c0.Type)
	}
	if strings.Join(c0.Columns, ",") != "slug,tenant" {
		t.Errorf("constraint columns = %v, want [slug tenant]", c0.Columns)
	}
}

func TestLoadModelsFromPath_Junction(t *testing.T) {
	dir := writeFiles(t, map[string]string{"models.go": blogModels})

	var c collector
	if _, err := LoadModelsFromPath(dir, &c); err != nil {
		t.Fatal(err)
	}
	tags := c.tables["post_tag"]
	if !tags.Junction {
		t.Error("post_tag should be a junction")
	}
	if tags.IsSoftDeletable() {
		t.Error("post_tag should not be soft-deletable")
	}
	if got := strings.Join(tags.PrimaryKey.Columns, ","); got != "post_id,tag" {
		t.Errorf("primary key = %s, want post_id,tag", got)
	}
}

func TestLoadModelsFromPath_MixinInAnotherFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"base.go": `package models

import "time"

type Timestamps struct {
	Created time.Time ` + "`po:\"created_at,timestamptz,notNull,default(now())\"`" + `
}
`,
		"note.go": `package models

type Note struct {
	ID   int64 ` + "`po:\"id,primaryKey,bigserial\"`" + `
	Body string
	Timestamps
}
`,
	})

	var c collector
	if _, err := LoadModelsFromPath(dir, &c); err != nil {
		t.Fatal(err)
	}
	note := c.tables["note"]
	if note == nil {
		t.Fatal("note not registered")
	}
	col := note.GetColumnByName("created_at")
	if col == nil {
		t.Fatal("mixin column created_at missing")
	}
	if col.Default == nil || *col.Default != "now()" {
		t.Errorf("created_at default = %v, want now()", col.Default)
	}
	if note.GetColumnByName("body") != nil {
		t.Error("untagged field should not become a column")
	}
}

func TestLoadModelsFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "two soft delete columns",
			body: `package models

import "time"

type Doc struct {
	ID      int64      ` + "`po:\"id,primaryKey\"`" + `
	Removed *time.Time ` + "`po:\"removed,softDelete\"`" + `
	Trashed *time.Time ` + "`po:\"trashed,softDelete\"`" + `
}
`,
			want: "more than one softDelete column",
		},
		{
			name: "setnull on not null column",
			body: `package models

type Doc struct {
	ID      int64 ` + "`po:\"id,primaryKey\"`" + `
	OwnerID int64 ` + "`po:\"owner_id,notNull,fk:owners(id),onDelete:setnull\"`" + `
}
`,
			want: "not nullable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFiles(t, map[string]string{"doc.go": tt.body})
			var c collector
			_, err := LoadModelsFromPath(dir, &c)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadModelsFromPath_Paths(t *testing.T) {
	dir := writeFiles(t, map[string]string{"models.go": blogModels, "models_test.go": "package models\n\nthis is not go"})

	var c collector
	if _, err := LoadModelsFromPath(filepath.Join(dir, "models.go"), &c); err != nil {
		t.Errorf("single file: %v", err)
	}
	if _, err := LoadModelsFromPath(filepath.Join(dir, "missing"), &c); err == nil {
		t.Error("expected error for missing path")
	}
	if _, err := LoadModelsFromPath(t.TempDir(), &c); err == nil {
		t.Error("expected error for directory without go files")
	}
}

func TestLoadModelsFromPath_Graph(t *testing.T) {
	dir := writeFiles(t, map[string]string{"models.go": blogModels})

	reg := registry.NewRegistry()
	if _, err := LoadModelsFromPath(dir, reg); err != nil {
		t.Fatal(err)
	}
	g := reg.Graph()
	if !(g.Rank("authors") < g.Rank("blog_posts") && g.Rank("blog_posts") < g.Rank("post_tag")) {
		t.Errorf("order = %v, want authors before blog_posts before post_tag", g.Order())
	}
	if deps := g.Dependents("authors"); len(deps) != 2 {
		t.Errorf("authors dependents = %d, want 2", len(deps))
	}
}

func TestSQLTypeOf(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"string", "text"},
		{"int64", "bigint"},
		{"int32", "integer"},
		{"bool", "boolean"},
		{"float64", "double precision"},
		{"time.Time", "timestamptz"},
		{"*time.Time", "timestamptz"},
		{"uuid.UUID", "uuid"},
		{"[]byte", "bytea"},
		{"map[string]any", "jsonb"},
		{"sql.NullString", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			expr, err := parser.ParseExpr(tt.src)
			if err != nil {
				t.Fatal(err)
			}
			if got := sqlTypeOf(expr); got != tt.want {
				t.Errorf("sqlTypeOf(%s) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}
