package permanent

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

// RestoreRecord makes one soft-deleted record live again, a pointer to a
// registered model. Only the removed column is written. Pre- and post-restore
// observers run around the update in the same transaction.
func (e *Engine) RestoreRecord(ctx context.Context, record any) error {
	table, err := e.Table(record)
	if err != nil {
		return err
	}
	acc, err := AccessorFor(table, record)
	if err != nil {
		return err
	}
	return e.restoreRecord(ctx, table, acc)
}

// RestoreRow is RestoreRecord for a row of the named table.
func (e *Engine) RestoreRow(ctx context.Context, table string, row store.Row) error {
	t, err := e.TableByName(table)
	if err != nil {
		return err
	}
	return e.restoreRecord(ctx, t, rowAccessor(row))
}

func (e *Engine) restoreRecord(ctx context.Context, table *schema.TableMetadata, acc Accessor) (err error) {
	if !table.IsSoftDeletable() {
		return fmt.Errorf("restore %s: %w", table.Name, ErrNotSoftDeletable)
	}

	ctx, span := e.startRestore(ctx, table)
	defer func() { endSpan(span, err) }()

	err = e.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		return e.withStore(tx).restoreOne(ctx, table, acc)
	})
	if err != nil {
		return err
	}
	e.metrics.add(table.Name, actionRestored, 1)
	return nil
}

// restoreOne clears the removed column of the record behind acc. The caller
// provides the transaction.
func (e *Engine) restoreOne(ctx context.Context, table *schema.TableMetadata, acc Accessor) error {
	row := snapshot(table, acc)
	where, err := matchRows(table, []store.Row{row})
	if err != nil {
		return err
	}
	if _, err := recordKey(table, row); err != nil {
		return fmt.Errorf("cannot restore %s: %w", table.Name, err)
	}

	if err := e.notify(ctx, table, preRestore, []Accessor{acc}); err != nil {
		return err
	}
	unset := table.SoftDelete.Unset
	n, err := e.store.Update(ctx, builder.Update(table).Set(table.SoftDelete.Column, unset).Where(where))
	if err != nil {
		return fmt.Errorf("restore %s: %w", table.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("restore %s: %w", table.Name, ErrNotFound)
	}
	if err := acc.Set(table.SoftDelete.Column, unset); err != nil {
		return err
	}
	return e.notify(ctx, table, postRestore, []Accessor{acc})
}

// RestoreQuery clears the removed column of every row q selects in one
// statement, ignoring the view predicate but keeping every other condition.
// No observers run.
func (e *Engine) RestoreQuery(ctx context.Context, q *builder.SelectQuery) (n int64, err error) {
	table := q.Table()
	if !table.IsSoftDeletable() {
		return 0, fmt.Errorf("restore %s: %w", table.Name, ErrNotSoftDeletable)
	}
	if q.IsSliced() || q.IsProjected() {
		return 0, ErrSlicedOperation
	}

	ctx, span := e.startRestore(ctx, table)
	defer func() { endSpan(span, err) }()

	n, err = e.updateWhere(ctx, q.Clone().Unpatched(), builder.Assignment{Column: table.SoftDelete.Column, Value: table.SoftDelete.Unset})
	if err != nil {
		return 0, err
	}
	e.metrics.add(table.Name, actionRestored, n)
	return n, nil
}

// updateWhere applies sets to the rows q selects. Queries over joins or an
// alias are resolved to primary keys first.
func (e *Engine) updateWhere(ctx context.Context, q *builder.SelectQuery, sets ...builder.Assignment) (int64, error) {
	table := q.Table()
	if len(q.Joins()) == 0 && q.Alias() == table.Name {
		u := builder.Update(table).Where(q.Conditions()...)
		for _, s := range sets {
			u.Set(s.Column, s.Value)
		}
		return e.store.Update(ctx, u)
	}

	var n int64
	err := e.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		pk := table.PrimaryKeyColumn()
		if pk == nil {
			return fmt.Errorf("%w: %s", ErrNoPrimaryKey, table.Name)
		}
		rows, err := tx.Select(ctx, q.Clone().Columns(q.Alias()+"."+pk.Name))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		u, err := builder.UpdateByPK(table, pkValues(table, rows), sets...)
		if err != nil {
			return err
		}
		n, err = tx.Update(ctx, u)
		return err
	})
	return n, err
}

func (e *Engine) startRestore(ctx context.Context, table *schema.TableMetadata) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "permanent.Restore", trace.WithAttributes(
		attribute.String("permanent.table", table.Name),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
