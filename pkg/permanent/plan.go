package permanent

import (
	"cmp"
	"context"
	"slices"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
	"github.com/marshallshelly/pebble-permanent/pkg/visibility"
)

// Mode is what a delete does to the rows of a batch.
type Mode int

const (
	// SoftMark stamps the removed column.
	SoftMark Mode = iota
	// HardDelete removes the rows.
	HardDelete
)

func (m Mode) String() string {
	if m == SoftMark {
		return "soft"
	}
	return "hard"
}

// Batch holds the rows of one table a delete marks or removes, in primary
// key order.
type Batch struct {
	Table *schema.TableMetadata
	Mode  Mode
	Rows  []store.Row

	seen map[any]bool
}

// NullifyBatch holds the rows whose foreign key Column is cleared.
type NullifyBatch struct {
	Table  *schema.TableMetadata
	Column string
	Rows   []store.Row

	seen map[any]bool
}

// Plan is the classified set of mutations of one delete. Batches are in
// root-to-leaf order; execution walks them backwards.
type Plan struct {
	Batches []*Batch
	Nullify []*NullifyBatch
	Force   bool
}

// Order returns the table names of the batches, root-to-leaf.
func (p *Plan) Order() []string {
	names := make([]string, len(p.Batches))
	for i, b := range p.Batches {
		names[i] = b.Table.Name
	}
	return names
}

// Batch returns the batch of table, or nil.
func (p *Plan) Batch(table string) *Batch {
	for _, b := range p.Batches {
		if b.Table.Name == table {
			return b
		}
	}
	return nil
}

// Counts returns the number of rows each batch marks or removes.
func (p *Plan) Counts() map[string]int64 {
	counts := make(map[string]int64, len(p.Batches))
	for _, b := range p.Batches {
		counts[b.Table.Name] += int64(len(b.Rows))
	}
	return counts
}

// Total returns the number of rows the plan marks or removes.
func (p *Plan) Total() int64 {
	var n int64
	for _, b := range p.Batches {
		n += int64(len(b.Rows))
	}
	return n
}

// Cleared returns the number of rows whose foreign keys are cleared, keyed
// by "table.column".
func (p *Plan) Cleared() map[string]int64 {
	counts := make(map[string]int64, len(p.Nullify))
	for _, n := range p.Nullify {
		counts[n.Table.Name+"."+n.Column] += int64(len(n.Rows))
	}
	return counts
}

// Merge adds the rows of o that p does not hold yet.
func (p *Plan) Merge(o *Plan) error {
	for _, ob := range o.Batches {
		b := p.Batch(ob.Table.Name)
		if b == nil {
			b = &Batch{Table: ob.Table, Mode: ob.Mode}
			p.Batches = append(p.Batches, b)
		}
		var err error
		if b.seen, b.Rows, err = union(b.Table, b.seen, b.Rows, ob.Rows); err != nil {
			return err
		}
	}
	for _, on := range o.Nullify {
		var n *NullifyBatch
		for _, have := range p.Nullify {
			if have.Table.Name == on.Table.Name && have.Column == on.Column {
				n = have
				break
			}
		}
		if n == nil {
			n = &NullifyBatch{Table: on.Table, Column: on.Column}
			p.Nullify = append(p.Nullify, n)
		}
		var err error
		if n.seen, n.Rows, err = union(n.Table, n.seen, n.Rows, on.Rows); err != nil {
			return err
		}
	}
	p.Force = p.Force || o.Force
	return nil
}

// union appends the rows of more not in seen, building seen from rows when
// it is nil.
func union(table *schema.TableMetadata, seen map[any]bool, rows, more []store.Row) (map[any]bool, []store.Row, error) {
	if seen == nil {
		seen = make(map[any]bool, len(rows))
		for _, row := range rows {
			key, err := rowKey(table, row)
			if err != nil {
				return nil, nil, err
			}
			seen[key] = true
		}
	}
	for _, row := range more {
		key, err := rowKey(table, row)
		if err != nil {
			return nil, nil, err
		}
		if !seen[key] {
			seen[key] = true
			rows = append(rows, row)
		}
	}
	return seen, rows, nil
}

func modeFor(table *schema.TableMetadata, force bool) Mode {
	if table.IsSoftDeletable() && !force {
		return SoftMark
	}
	return HardDelete
}

type collector struct {
	graph   *registry.Graph
	store   store.Store
	force   bool
	batches map[string]*Batch
	nulls   map[[2]string]*NullifyBatch
	plan    *Plan
}

// add records rows in the batch of table and returns the ones not seen before.
func (c *collector) add(table *schema.TableMetadata, rows []store.Row) ([]store.Row, error) {
	b, ok := c.batches[table.Name]
	if !ok {
		b = &Batch{Table: table, Mode: modeFor(table, c.force), seen: make(map[any]bool)}
		c.batches[table.Name] = b
		c.plan.Batches = append(c.plan.Batches, b)
	}
	var fresh []store.Row
	for _, row := range rows {
		key, err := rowKey(table, row)
		if err != nil {
			return nil, err
		}
		if b.seen[key] {
			continue
		}
		b.seen[key] = true
		b.Rows = append(b.Rows, row)
		fresh = append(fresh, row)
	}
	return fresh, nil
}

func (c *collector) nullify(table *schema.TableMetadata, column string, rows []store.Row) error {
	id := [2]string{table.Name, column}
	n, ok := c.nulls[id]
	if !ok {
		n = &NullifyBatch{Table: table, Column: column, seen: make(map[any]bool)}
		c.nulls[id] = n
		c.plan.Nullify = append(c.plan.Nullify, n)
	}
	for _, row := range rows {
		key, err := rowKey(table, row)
		if err != nil {
			return err
		}
		if !n.seen[key] {
			n.seen[key] = true
			n.Rows = append(n.Rows, row)
		}
	}
	return nil
}

// collect walks the relation graph breadth-first from roots and classifies
// every dependent row. Each row enters the plan once however many paths
// reach it.
func (e *Engine) collect(ctx context.Context, table *schema.TableMetadata, roots []store.Row, force bool) (*Plan, error) {
	ctx = visibility.WithDeleting(ctx)
	view := builder.ViewLive
	if force {
		ctx = visibility.WithShowAll(ctx)
		view = builder.ViewAll
	}

	c := &collector{
		graph:   e.graph,
		store:   e.store,
		force:   force,
		batches: make(map[string]*Batch),
		nulls:   make(map[[2]string]*NullifyBatch),
		plan:    &Plan{Force: force},
	}

	sortRows(table, roots)
	fresh, err := c.add(table, roots)
	if err != nil {
		return nil, err
	}

	type frontier struct {
		table *schema.TableMetadata
		rows  []store.Row
	}
	queue := []frontier{{table, fresh}}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		for _, edge := range e.graph.Dependents(f.table.Name) {
			if edge.Disposition != schema.Cascade && edge.Disposition != schema.SetNull {
				continue
			}
			source, ok := e.graph.Table(edge.Source)
			if !ok {
				continue
			}
			keys := referencedKeys(f.rows, edge.References)
			if len(keys) == 0 {
				continue
			}

			q := builder.SelectView(source, view).Where(builder.In(edge.Column, keys...))
			rows, err := c.store.Select(ctx, q)
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				continue
			}
			sortRows(source, rows)

			if edge.Disposition == schema.SetNull {
				if err := c.nullify(source, edge.Column, rows); err != nil {
					return nil, err
				}
				continue
			}
			fresh, err := c.add(source, rows)
			if err != nil {
				return nil, err
			}
			if len(fresh) > 0 {
				queue = append(queue, frontier{source, fresh})
			}
		}
	}

	rank := func(name string) int { return e.graph.Rank(name) }
	slices.SortStableFunc(c.plan.Batches, func(a, b *Batch) int {
		if a.Table.Name == table.Name || b.Table.Name == table.Name {
			// the root batch always leads
			return cmp.Compare(boolRank(b.Table.Name == table.Name), boolRank(a.Table.Name == table.Name))
		}
		return cmp.Compare(rank(a.Table.Name), rank(b.Table.Name))
	})
	for _, b := range c.plan.Batches {
		sortRows(b.Table, b.Rows)
	}
	slices.SortStableFunc(c.plan.Nullify, func(a, b *NullifyBatch) int {
		return cmp.Or(cmp.Compare(rank(a.Table.Name), rank(b.Table.Name)), cmp.Compare(a.Column, b.Column))
	})
	for _, n := range c.plan.Nullify {
		sortRows(n.Table, n.Rows)
	}
	return c.plan, nil
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func referencedKeys(rows []store.Row, column string) []interface{} {
	seen := make(map[any]bool, len(rows))
	var keys []interface{}
	for _, row := range rows {
		v := row[column]
		k := keyValue(v)
		if k == nil || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, v)
	}
	return keys
}
