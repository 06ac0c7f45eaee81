package commands

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

// selectTables returns the named tables in graph order, or every table when
// names is empty. softOnly drops tables without a soft-delete column; naming
// one of those explicitly is an error.
func selectTables(g *registry.Graph, names []string, softOnly bool) ([]*schema.TableMetadata, error) {
	for _, name := range names {
		table, ok := g.Table(name)
		if !ok {
			return nil, fmt.Errorf("unknown table %q", name)
		}
		if softOnly && !table.IsSoftDeletable() {
			return nil, fmt.Errorf("table %q is not soft-deletable", name)
		}
	}

	var tables []*schema.TableMetadata
	for _, name := range g.Order() {
		if len(names) > 0 && !slices.Contains(names, name) {
			continue
		}
		table, _ := g.Table(name)
		if softOnly && !table.IsSoftDeletable() {
			continue
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// parseAge reads a duration that may also be given in days, as in 30d.
func parseAge(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		d, err := time.ParseDuration(days + "h")
		if err != nil {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return d * 24, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q", s)
	}
	return d, nil
}

// rowKey formats the primary key of row.
func rowKey(table *schema.TableMetadata, row store.Row) string {
	if table.PrimaryKey == nil {
		return "?"
	}
	parts := make([]string, len(table.PrimaryKey.Columns))
	for i, col := range table.PrimaryKey.Columns {
		parts[i] = fmt.Sprint(row[col])
	}
	return strings.Join(parts, ",")
}

// rowSummary renders up to four non-key columns of row as col=value.
func rowSummary(table *schema.TableMetadata, row store.Row) string {
	var parts []string
	for _, col := range table.Columns {
		if len(parts) == 4 {
			break
		}
		if table.PrimaryKey != nil && slices.Contains(table.PrimaryKey.Columns, col.Name) {
			continue
		}
		if table.SoftDelete != nil && col.Name == table.SoftDelete.Column {
			continue
		}
		v, ok := row[col.Name]
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if len(s) > 32 {
			s = s[:29] + "..."
		}
		parts = append(parts, col.Name+"="+s)
	}
	return strings.Join(parts, " ")
}

func formatStamp(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Local().Format("2006-01-02 15:04:05")
	case *time.Time:
		if t != nil {
			return t.Local().Format("2006-01-02 15:04:05")
		}
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
