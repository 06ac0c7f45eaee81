package registry

import (
	"cmp"
	"maps"
	"slices"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// Edge is a foreign key seen from the referenced side: rows of Source point
// at rows of Target through Column.
type Edge struct {
	Source      string
	Target      string
	Column      string
	References  string
	Nullable    bool
	Disposition schema.ReferenceAction
}

// Graph is the immutable relation graph of a frozen registry.
type Graph struct {
	tables     map[string]*schema.TableMetadata
	edges      []Edge
	dependents map[string][]Edge
	order      []string
	rank       map[string]int
}

func buildGraph(tables map[string]*schema.TableMetadata) *Graph {
	g := &Graph{
		tables:     maps.Clone(tables),
		dependents: make(map[string][]Edge),
	}
	for _, name := range slices.Sorted(maps.Keys(tables)) {
		table := tables[name]
		for _, fk := range table.ForeignKeys {
			if len(fk.Columns) != 1 || len(fk.ReferencedColumns) != 1 {
				continue
			}
			nullable := false
			if col := table.GetColumnByName(fk.Columns[0]); col != nil {
				nullable = col.Nullable
			}
			e := Edge{
				Source:      table.Name,
				Target:      fk.ReferencedTable,
				Column:      fk.Columns[0],
				References:  fk.ReferencedColumns[0],
				Nullable:    nullable,
				Disposition: disposition(fk.OnDelete),
			}
			g.edges = append(g.edges, e)
			g.dependents[e.Target] = append(g.dependents[e.Target], e)
		}
	}
	slices.SortFunc(g.edges, compareEdges)
	for target := range g.dependents {
		slices.SortFunc(g.dependents[target], compareEdges)
	}
	g.order = topoSort(tables, g.edges)
	g.rank = make(map[string]int, len(g.order))
	for i, name := range g.order {
		g.rank[name] = i
	}
	return g
}

// SET DEFAULT has no default to materialise at this layer and leaves rows as
// they are.
func disposition(action schema.ReferenceAction) schema.ReferenceAction {
	switch action {
	case schema.Cascade, schema.SetNull, schema.Restrict:
		return action
	default:
		return schema.NoAction
	}
}

func compareEdges(a, b Edge) int {
	return cmp.Or(cmp.Compare(a.Source, b.Source), cmp.Compare(a.Column, b.Column))
}

// topoSort orders tables so that referenced tables precede the tables that
// reference them (Kahn's algorithm). Tables caught in a cycle are appended
// in name order.
func topoSort(tables map[string]*schema.TableMetadata, edges []Edge) []string {
	inDegree := make(map[string]int, len(tables))
	next := make(map[string][]string)
	for name := range tables {
		inDegree[name] = 0
	}
	for _, e := range edges {
		if e.Source == e.Target {
			continue
		}
		if _, ok := tables[e.Target]; !ok {
			continue
		}
		inDegree[e.Source]++
		next[e.Target] = append(next[e.Target], e.Source)
	}

	var queue []string
	for _, name := range slices.Sorted(maps.Keys(inDegree)) {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	order := make([]string, 0, len(tables))
	seen := make(map[string]bool, len(tables))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		seen[name] = true

		children := next[name]
		slices.Sort(children)
		for _, child := range children {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	for _, name := range slices.Sorted(maps.Keys(tables)) {
		if !seen[name] {
			order = append(order, name)
		}
	}
	return order
}

// Table returns the metadata for a table name.
func (g *Graph) Table(name string) (*schema.TableMetadata, bool) {
	t, ok := g.tables[name]
	return t, ok
}

// Edges returns every edge, ordered by source table and column.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Dependents returns the edges whose target is table.
func (g *Graph) Dependents(table string) []Edge {
	return g.dependents[table]
}

// Order returns table names with referenced tables first.
func (g *Graph) Order() []string {
	return slices.Clone(g.order)
}

// Rank returns the position of table in Order, or -1.
func (g *Graph) Rank(table string) int {
	if r, ok := g.rank[table]; ok {
		return r
	}
	return -1
}
