package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

type Category struct {
	ID int64 `po:"id,primaryKey,bigserial"`
	schema.Permanent
}

type Post struct {
	ID         int64  `po:"id,primaryKey,bigserial"`
	CategoryID int64  `po:"category_id,bigint,notNull,fk:category(id),onDelete:cascade"`
	ReviewerID *int64 `po:"reviewer_id,bigint,fk:category(id),onDelete:setnull"`
	schema.Permanent
}

type Comment struct {
	ID       int64  `po:"id,primaryKey,bigserial"`
	PostID   int64  `po:"post_id,bigint,notNull,fk:post(id),onDelete:cascade"`
	ParentID *int64 `po:"parent_id,bigint,fk:comment(id),onDelete:setdefault"`
}

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	r := NewRegistry()
	// registration order differs from dependency order on purpose
	require.NoError(t, r.Register(Comment{}))
	require.NoError(t, r.Register(Post{}))
	require.NoError(t, r.Register(Category{}))
	return r.Graph()
}

func TestGraph_Dependents(t *testing.T) {
	g := newTestGraph(t)

	deps := g.Dependents("category")
	require.Len(t, deps, 2)
	assert.Equal(t, Edge{
		Source: "post", Target: "category", Column: "category_id", References: "id",
		Nullable: false, Disposition: schema.Cascade,
	}, deps[0])
	assert.Equal(t, "reviewer_id", deps[1].Column)
	assert.True(t, deps[1].Nullable)
	assert.Equal(t, schema.SetNull, deps[1].Disposition)

	self := g.Dependents("comment")
	require.Len(t, self, 1)
	assert.Equal(t, schema.NoAction, self[0].Disposition, "SET DEFAULT is treated as no action")

	assert.Empty(t, g.Dependents("missing"))
	assert.Len(t, g.Edges(), 4)
}

func TestGraph_Order(t *testing.T) {
	g := newTestGraph(t)

	assert.Equal(t, []string{"category", "post", "comment"}, g.Order())
	assert.Equal(t, 0, g.Rank("category"))
	assert.Equal(t, 2, g.Rank("comment"))
	assert.Equal(t, -1, g.Rank("missing"))

	table, ok := g.Table("post")
	require.True(t, ok)
	assert.True(t, table.IsSoftDeletable())
}

func TestTopoSort_Cycle(t *testing.T) {
	tables := map[string]*schema.TableMetadata{
		"a":    {Name: "a"},
		"b":    {Name: "b"},
		"root": {Name: "root"},
	}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "a"},
		{Source: "a", Target: "root"},
	}
	assert.Equal(t, []string{"root", "a", "b"}, topoSort(tables, edges))
}
