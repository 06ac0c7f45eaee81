package builder

import (
	"testing"

	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

type Post struct {
	ID    int64  `po:"id,primaryKey,bigserial"`
	Title string `po:"title,text,notNull"`
	schema.Permanent
}

type Comment struct {
	ID     int64  `po:"id,primaryKey,bigserial"`
	PostID int64  `po:"post_id,bigint,notNull,fk:post(id),onDelete:cascade"`
	Body   string `po:"body,text"`
	schema.Permanent
}

type Attachment struct {
	ID        int64 `po:"id,primaryKey,bigserial"`
	CommentID int64 `po:"comment_id,bigint,notNull,fk:comment(id),onDelete:cascade"`
}

type Reply struct {
	ID       int64  `po:"id,primaryKey,bigserial"`
	ParentID *int64 `po:"parent_id,bigint,fk:reply(id),onDelete:cascade"`
	schema.Permanent
}

type fixture struct {
	graph      *registry.Graph
	post       *schema.TableMetadata
	comment    *schema.TableMetadata
	attachment *schema.TableMetadata
	reply      *schema.TableMetadata
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	r := registry.NewRegistry()
	for _, m := range []any{Post{}, Comment{}, Attachment{}, Reply{}} {
		if err := r.Register(m); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	g := r.Graph()
	f := fixture{graph: g}
	f.post, _ = g.Table("post")
	f.comment, _ = g.Table("comment")
	f.attachment, _ = g.Table("attachment")
	f.reply, _ = g.Table("reply")
	return f
}

func (f fixture) relation(t *testing.T, source, column string) Relation {
	t.Helper()
	for _, e := range f.graph.Edges() {
		if e.Source == source && e.Column == column {
			rel, ok := ResolveRelation(f.graph, e)
			if !ok {
				t.Fatalf("unresolved relation %s.%s", source, column)
			}
			return rel
		}
	}
	t.Fatalf("no edge %s.%s", source, column)
	return Relation{}
}
