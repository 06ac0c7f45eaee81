package permanent

import (
	"context"
	"fmt"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// QuerySet is an immutable query over one model. Every refinement returns
// a new QuerySet; the receiver is never changed.
type QuerySet[T any] struct {
	engine *Engine
	table  *schema.TableMetadata
	query  *builder.SelectQuery
}

func newQuerySet[T any](e *Engine, table *schema.TableMetadata, view builder.View) *QuerySet[T] {
	return &QuerySet[T]{engine: e, table: table, query: builder.SelectView(table, view)}
}

func (qs *QuerySet[T]) derive(fn func(q *builder.SelectQuery)) *QuerySet[T] {
	q := qs.query.Clone()
	fn(q)
	return &QuerySet[T]{engine: qs.engine, table: qs.table, query: q}
}

// Filter keeps rows matching every condition.
func (qs *QuerySet[T]) Filter(conds ...builder.Condition) *QuerySet[T] {
	return qs.derive(func(q *builder.SelectQuery) { q.Where(conds...) })
}

// Exclude drops rows matching every condition.
func (qs *QuerySet[T]) Exclude(conds ...builder.Condition) *QuerySet[T] {
	return qs.derive(func(q *builder.SelectQuery) { q.Where(builder.Not(builder.Group(conds...))) })
}

// Join traverses a relation. Visibility restrictions come from ctx, except
// in the unfiltered view, which joins deleted rows too.
func (qs *QuerySet[T]) Join(ctx context.Context, spec builder.JoinSpec) *QuerySet[T] {
	return qs.derive(func(q *builder.SelectQuery) { q.Join(ctx, spec) })
}

// OrderBy appends an ordering.
func (qs *QuerySet[T]) OrderBy(column string, dir builder.OrderDirection) *QuerySet[T] {
	return qs.derive(func(q *builder.SelectQuery) { q.OrderBy(column, dir) })
}

// Limit slices the result. Sliced sets cannot be deleted, restored or updated.
func (qs *QuerySet[T]) Limit(n int) *QuerySet[T] {
	return qs.derive(func(q *builder.SelectQuery) { q.Limit(n) })
}

// Offset slices the result.
func (qs *QuerySet[T]) Offset(n int) *QuerySet[T] {
	return qs.derive(func(q *builder.SelectQuery) { q.Offset(n) })
}

// Columns projects the result onto cols. Projected sets cannot be deleted,
// restored or updated.
func (qs *QuerySet[T]) Columns(cols ...string) *QuerySet[T] {
	return qs.derive(func(q *builder.SelectQuery) { q.Columns(cols...) })
}

// Distinct removes duplicate rows, as produced by reverse joins.
func (qs *QuerySet[T]) Distinct() *QuerySet[T] {
	return qs.derive(func(q *builder.SelectQuery) { q.Distinct() })
}

// Unpatched drops the view predicate, keeping every other condition. The
// result and everything derived from it see all rows.
func (qs *QuerySet[T]) Unpatched() *QuerySet[T] {
	return qs.derive(func(q *builder.SelectQuery) { q.Unpatched() })
}

// View reports which rows the set currently sees.
func (qs *QuerySet[T]) View() builder.View { return qs.query.View() }

// Query returns a copy of the underlying SELECT.
func (qs *QuerySet[T]) Query() *builder.SelectQuery { return qs.query.Clone() }

// All fetches every matching record.
func (qs *QuerySet[T]) All(ctx context.Context) ([]T, error) {
	rows, err := qs.engine.store.Select(ctx, qs.query)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		rec, err := decode[T](qs.table, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// First returns the first matching record, or ErrNotFound.
func (qs *QuerySet[T]) First(ctx context.Context) (*T, error) {
	recs, err := qs.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", qs.table.Name, ErrNotFound)
	}
	return &recs[0], nil
}

// Get returns the single matching record. It fails with ErrNotFound or
// ErrMultipleRows.
func (qs *QuerySet[T]) Get(ctx context.Context) (*T, error) {
	recs, err := qs.Limit(2).All(ctx)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return nil, fmt.Errorf("%s: %w", qs.table.Name, ErrNotFound)
	case 1:
		return &recs[0], nil
	default:
		return nil, fmt.Errorf("%s: %w", qs.table.Name, ErrMultipleRows)
	}
}

// Count returns the number of matching rows.
func (qs *QuerySet[T]) Count(ctx context.Context) (int64, error) {
	return qs.engine.store.Count(ctx, qs.query)
}

// Exists reports whether any row matches.
func (qs *QuerySet[T]) Exists(ctx context.Context) (bool, error) {
	n, err := qs.Limit(1).Count(ctx)
	return n > 0, err
}

// Delete deletes every matching record with its dependents in one
// transaction. Observers run once per affected row.
func (qs *QuerySet[T]) Delete(ctx context.Context, force bool) (Result, error) {
	return qs.engine.DeleteQuery(ctx, qs.query, force)
}

// Restore makes every matching record live in one statement and returns the
// number of rows written. The view predicate is ignored, so rows that are
// already live but match the filters are counted too. Observers do not run.
func (qs *QuerySet[T]) Restore(ctx context.Context) (int64, error) {
	return qs.engine.RestoreQuery(ctx, qs.query)
}

// Update applies sets to every matching row. Setting the removed column
// ignores the view predicate.
func (qs *QuerySet[T]) Update(ctx context.Context, sets ...builder.Assignment) (int64, error) {
	if qs.query.IsSliced() || qs.query.IsProjected() {
		return 0, ErrSlicedOperation
	}
	q := qs.query.Clone()
	if qs.table.IsSoftDeletable() {
		for _, s := range sets {
			if s.Column == qs.table.SoftDelete.Column {
				q.Unpatched()
				break
			}
		}
	}
	return qs.engine.updateWhere(ctx, q, sets...)
}
