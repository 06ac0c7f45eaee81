package builder

import (
	"strings"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// Field returns the column mapped to a Go field of table, so filters don't
// repeat tag names:
//
//	builder.Eq(builder.Field(posts, "AuthorID"), 7)
//
// A qualified name ("post.AuthorID") keeps its qualifier. Unknown fields are
// returned unchanged.
func Field(table *schema.TableMetadata, goField string) string {
	qualifier, name := "", goField
	if i := strings.LastIndexByte(goField, '.'); i >= 0 {
		qualifier, name = goField[:i+1], goField[i+1:]
	}
	if column := table.GetColumnByField(name); column != nil {
		return qualifier + column.Name
	}
	return goField
}
