// Package memstore is an in-process store.Store that evaluates builder
// queries over maps. It enforces primary keys, unique constraints and
// foreign keys with their ON DELETE actions, and runs transactions against
// snapshots, so engine behaviour can be exercised without PostgreSQL.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/runtime"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

// Store is an in-memory store.Store. Transactions are serialized: statements
// on the root store wait for an open transaction to finish.
type Store struct {
	state *state
	tx    bool
}

var _ store.Store = (*Store)(nil)

type state struct {
	mu    sync.Mutex
	graph *registry.Graph
	db    *database
}

type database struct {
	tables map[string]*tableData
}

type tableData struct {
	meta *schema.TableMetadata
	rows []store.Row
	seq  int64
}

// New creates an empty store for the tables of g.
func New(g *registry.Graph) *Store {
	db := &database{tables: make(map[string]*tableData)}
	for _, name := range g.Order() {
		meta, _ := g.Table(name)
		db.tables[name] = &tableData{meta: meta}
	}
	return &Store{state: &state{graph: g, db: db}}
}

func (s *Store) lock() func() {
	if s.tx {
		return func() {}
	}
	s.state.mu.Lock()
	return s.state.mu.Unlock
}

// write applies fn to a copy of the database and keeps the copy only when
// fn succeeds, so a failed statement changes nothing.
func (s *Store) write(fn func(db *database) error) error {
	next := s.state.db.clone()
	if err := fn(next); err != nil {
		return err
	}
	s.state.db = next
	return nil
}

// Atomic implements store.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock()()

	snapshot := s.state.db.clone()
	defer func() {
		if p := recover(); p != nil {
			s.state.db = snapshot
			panic(p)
		}
		if err != nil {
			s.state.db = snapshot
		}
	}()
	return fn(ctx, &Store{state: s.state, tx: true})
}

// Select implements store.Store.
func (s *Store) Select(ctx context.Context, q *builder.SelectQuery) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()
	return s.state.db.query(q)
}

// Count implements store.Store.
func (s *Store) Count(ctx context.Context, q *builder.SelectQuery) (int64, error) {
	rows, err := s.Select(ctx, q)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, q *builder.InsertQuery) (store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock()()

	var inserted store.Row
	err := s.write(func(db *database) error {
		td := db.table(q.Table())
		row, err := td.newRow(q.Values())
		if err != nil {
			return err
		}
		if err := td.checkUnique(row, -1); err != nil {
			if q.IgnoresConflicts() {
				return nil
			}
			return err
		}
		if err := db.checkReferences(td, row); err != nil {
			return err
		}
		td.rows = append(td.rows, row)
		inserted = maps.Clone(row)
		return nil
	})
	return inserted, err
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, q *builder.UpdateQuery) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer s.lock()()

	var affected int64
	err := s.write(func(db *database) error {
		td := db.table(q.Table())
		sets := q.Assignments()
		for _, set := range sets {
			if td.meta.GetColumnByName(set.Column) == nil {
				return fmt.Errorf("memstore: column %q of relation %q does not exist", set.Column, td.meta.Name)
			}
		}

		var changed []int
		for i, row := range td.rows {
			ok, err := matchWhere(q.Conditions(), newScope(td.meta.Name, row))
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			next := maps.Clone(row)
			for _, set := range sets {
				next[set.Column] = normalize(set.Value)
			}
			td.rows[i] = next
			changed = append(changed, i)
		}
		for _, i := range changed {
			if err := td.checkNotNull(td.rows[i]); err != nil {
				return err
			}
			if err := td.checkUnique(td.rows[i], i); err != nil {
				return err
			}
			if err := db.checkReferences(td, td.rows[i]); err != nil {
				return err
			}
		}
		affected = int64(len(changed))
		return nil
	})
	return affected, err
}

// Delete implements store.Store. Rows referencing deleted rows follow the
// ON DELETE action of their foreign key.
func (s *Store) Delete(ctx context.Context, q *builder.DeleteQuery) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer s.lock()()

	var affected int64
	err := s.write(func(db *database) error {
		td := db.table(q.Table())
		var victims []int
		for i, row := range td.rows {
			ok, err := matchWhere(q.Conditions(), newScope(td.meta.Name, row))
			if err != nil {
				return err
			}
			if ok {
				victims = append(victims, i)
			}
		}
		affected = int64(len(victims))
		return db.remove(s.state.graph, td.meta.Name, victims)
	})
	return affected, err
}

func (db *database) clone() *database {
	next := &database{tables: make(map[string]*tableData, len(db.tables))}
	for name, td := range db.tables {
		rows := make([]store.Row, len(td.rows))
		for i, row := range td.rows {
			rows[i] = maps.Clone(row)
		}
		next.tables[name] = &tableData{meta: td.meta, rows: rows, seq: td.seq}
	}
	return next
}

func (db *database) table(meta *schema.TableMetadata) *tableData {
	td, ok := db.tables[meta.Name]
	if !ok {
		td = &tableData{meta: meta}
		db.tables[meta.Name] = td
	}
	return td
}

func (db *database) rows(name string) []store.Row {
	if td, ok := db.tables[name]; ok {
		return td.rows
	}
	return nil
}

type rowRef struct {
	table string
	index int
}

// remove deletes the victims of table and applies ON DELETE actions
// transitively. Restricting references to rows that survive fail the statement.
func (db *database) remove(g *registry.Graph, table string, victims []int) error {
	doomed := make(map[rowRef]bool)
	queue := make([]rowRef, 0, len(victims))
	for _, i := range victims {
		ref := rowRef{table, i}
		doomed[ref] = true
		queue = append(queue, ref)
	}

	var restricted []rowRef
	nullify := make(map[rowRef][]string)
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		row := db.tables[ref.table].rows[ref.index]

		for _, edge := range g.Dependents(ref.table) {
			key := row[edge.References]
			for j, dep := range db.rows(edge.Source) {
				if !equalValues(dep[edge.Column], key) {
					continue
				}
				depRef := rowRef{edge.Source, j}
				switch edge.Disposition {
				case schema.Cascade:
					if !doomed[depRef] {
						doomed[depRef] = true
						queue = append(queue, depRef)
					}
				case schema.SetNull:
					nullify[depRef] = append(nullify[depRef], edge.Column)
				default:
					restricted = append(restricted, depRef)
				}
			}
		}
	}

	for _, ref := range restricted {
		if !doomed[ref] {
			return fmt.Errorf("memstore: delete from %s: row of %s still references it: %w",
				table, ref.table, runtime.ErrForeignKeyViolation)
		}
	}
	for ref, columns := range nullify {
		if doomed[ref] {
			continue
		}
		row := maps.Clone(db.tables[ref.table].rows[ref.index])
		for _, c := range columns {
			row[c] = nil
		}
		db.tables[ref.table].rows[ref.index] = row
	}
	for name, td := range db.tables {
		kept := td.rows[:0]
		for i, row := range td.rows {
			if !doomed[rowRef{name, i}] {
				kept = append(kept, row)
			}
		}
		td.rows = kept
	}
	return nil
}

func (td *tableData) newRow(values []builder.Assignment) (store.Row, error) {
	row := make(store.Row, len(td.meta.Columns))
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if td.meta.GetColumnByName(v.Column) == nil {
			return nil, fmt.Errorf("memstore: column %q of relation %q does not exist", v.Column, td.meta.Name)
		}
		row[v.Column] = normalize(v.Value)
		set[v.Column] = true
	}
	for _, col := range td.meta.Columns {
		if set[col.Name] {
			continue
		}
		row[col.Name] = nil
		switch {
		case isGenerated(col):
			td.seq++
			row[col.Name] = td.seq
		case col.Default != nil:
			row[col.Name] = defaultValue(*col.Default)
		}
	}
	if pk := td.meta.PrimaryKeyColumn(); pk != nil && isGenerated(*pk) {
		if n, ok := row[pk.Name].(int64); ok && n > td.seq {
			td.seq = n
		}
	}
	if err := td.checkNotNull(row); err != nil {
		return nil, err
	}
	return row, nil
}

func (td *tableData) checkNotNull(row store.Row) error {
	for _, col := range td.meta.Columns {
		if !col.Nullable && row[col.Name] == nil {
			return fmt.Errorf("memstore: null value in column %q of relation %q violates not-null constraint", col.Name, td.meta.Name)
		}
	}
	return nil
}

// checkUnique compares row against every other row; self is the index of
// row itself, or -1 when it is not stored yet.
func (td *tableData) checkUnique(row store.Row, self int) error {
	keys := td.meta.UniqueKeys()
	if td.meta.PrimaryKey != nil {
		keys = append([][]string{td.meta.PrimaryKey.Columns}, keys...)
	}
	for _, key := range keys {
		for i, other := range td.rows {
			if i == self {
				continue
			}
			if sameKey(key, row, other) {
				return fmt.Errorf("memstore: %s: key (%s) already exists: %w",
					td.meta.Name, strings.Join(key, ", "), runtime.ErrDuplicateKey)
			}
		}
	}
	return nil
}

func sameKey(key []string, a, b store.Row) bool {
	for _, c := range key {
		if !equalValues(a[c], b[c]) {
			return false
		}
	}
	return len(key) > 0
}

func (db *database) checkReferences(td *tableData, row store.Row) error {
	for _, fk := range td.meta.ForeignKeys {
		if len(fk.Columns) != 1 || len(fk.ReferencedColumns) != 1 {
			continue
		}
		v := row[fk.Columns[0]]
		if v == nil {
			continue
		}
		target, ok := db.tables[fk.ReferencedTable]
		if !ok {
			continue
		}
		found := false
		for _, other := range target.rows {
			if equalValues(other[fk.ReferencedColumns[0]], v) {
				found = true
				break
			}
		}
		if !found && fk.ReferencedTable == td.meta.Name && equalValues(row[fk.ReferencedColumns[0]], v) {
			found = true
		}
		if !found {
			return fmt.Errorf("memstore: %s.%s = %v is not present in %s: %w",
				td.meta.Name, fk.Columns[0], v, fk.ReferencedTable, runtime.ErrForeignKeyViolation)
		}
	}
	return nil
}

func isGenerated(col schema.ColumnMetadata) bool {
	if col.AutoIncrement || col.Identity != nil {
		return true
	}
	switch strings.ToLower(col.SQLType) {
	case "serial", "bigserial", "smallserial":
		return true
	}
	return false
}

func defaultValue(expr string) any {
	e := strings.TrimSpace(expr)
	switch strings.ToLower(e) {
	case "now()", "current_timestamp":
		return time.Now()
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseInt(e, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(e, 64); err == nil {
		return f
	}
	return strings.Trim(e, "'")
}
