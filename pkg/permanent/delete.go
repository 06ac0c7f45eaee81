package permanent

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
	"github.com/marshallshelly/pebble-permanent/pkg/visibility"
)

// Result tallies the rows a delete marked or removed, keyed by table.
// Nullified rows are not counted.
type Result struct {
	Total    int64
	PerModel map[string]int64
}

func (r *Result) add(table string, n int64) {
	if n == 0 {
		return
	}
	if r.PerModel == nil {
		r.PerModel = make(map[string]int64)
	}
	r.PerModel[table] += n
	r.Total += n
}

type tally struct {
	table  string
	action string
	n      int64
}

// DeleteRecord deletes one record, a pointer to a registered model, with
// everything depending on it. The record is updated in place: its removed
// column is stamped, or its primary key cleared when it was removed.
func (e *Engine) DeleteRecord(ctx context.Context, record any, force bool) (Result, error) {
	table, err := e.Table(record)
	if err != nil {
		return Result{}, err
	}
	acc, err := AccessorFor(table, record)
	if err != nil {
		return Result{}, err
	}
	return e.deleteOne(ctx, table, acc, force)
}

// DeleteRow is DeleteRecord for a row of the named table, as read through
// a QuerySet or a store.
func (e *Engine) DeleteRow(ctx context.Context, table string, row store.Row, force bool) (Result, error) {
	t, err := e.TableByName(table)
	if err != nil {
		return Result{}, err
	}
	return e.deleteOne(ctx, t, rowAccessor(row), force)
}

// DeleteQuery deletes every row q selects with its dependents in one
// transaction. Sliced and projected queries are rejected before anything
// is read.
func (e *Engine) DeleteQuery(ctx context.Context, q *builder.SelectQuery, force bool) (Result, error) {
	if q.IsSliced() || q.IsProjected() {
		return Result{}, ErrSlicedOperation
	}
	var res Result
	err := e.Atomic(ctx, func(ctx context.Context, e *Engine) error {
		rows, err := e.store.Select(ctx, q)
		if err != nil {
			return err
		}
		res, _, err = e.delete(ctx, q.Table(), rows, force)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// PlanQuery returns what DeleteQuery(ctx, q, force) would change now,
// without changing anything.
func (e *Engine) PlanQuery(ctx context.Context, q *builder.SelectQuery, force bool) (*Plan, error) {
	if q.IsSliced() || q.IsProjected() {
		return nil, ErrSlicedOperation
	}
	var plan *Plan
	err := e.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		rows, err := tx.Select(ctx, q)
		if err != nil || len(rows) == 0 {
			plan = &Plan{Force: force}
			return err
		}
		plan, err = e.withStore(tx).collect(ctx, q.Table(), rows, force)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (e *Engine) deleteOne(ctx context.Context, table *schema.TableMetadata, acc Accessor, force bool) (Result, error) {
	root := snapshot(table, acc)
	if _, err := recordKey(table, root); err != nil {
		return Result{}, fmt.Errorf("cannot delete %s: %w", table.Name, err)
	}

	res, stamp, err := e.delete(ctx, table, []store.Row{root}, force)
	if err != nil {
		return Result{}, err
	}
	if modeFor(table, force) == SoftMark {
		err = acc.Set(table.SoftDelete.Column, stamp)
	} else {
		for _, pk := range table.PrimaryKey.Columns {
			if err = acc.Set(pk, nil); err != nil {
				break
			}
		}
	}
	return res, err
}

// delete runs the collector and the executor for roots of table in one
// transaction.
func (e *Engine) delete(ctx context.Context, table *schema.TableMetadata, roots []store.Row, force bool) (res Result, stamp time.Time, err error) {
	ctx, span := e.tracer.Start(ctx, "permanent.Delete", trace.WithAttributes(
		attribute.String("permanent.table", table.Name),
		attribute.Int("permanent.roots", len(roots)),
		attribute.Bool("permanent.force", force),
	))
	start := time.Now()
	defer func() {
		e.metrics.deleteDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int64("permanent.rows", res.Total))
		}
		span.End()
	}()

	if len(roots) == 0 {
		return Result{PerModel: map[string]int64{}}, time.Time{}, nil
	}
	stamp = e.clock()
	ctx = visibility.WithDeleting(ctx)

	var tallies []tally
	if e.canFastDelete(table, roots) {
		res, tallies, err = e.fastDelete(ctx, table, roots[0], force, stamp)
	} else {
		err = e.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
			bound := e.withStore(tx)
			plan, err := bound.collect(ctx, table, roots, force)
			if err != nil {
				return err
			}
			res, tallies, err = bound.execute(ctx, plan, stamp)
			return err
		})
	}
	if err != nil {
		return Result{}, stamp, err
	}
	for _, t := range tallies {
		e.metrics.add(t.table, t.action, t.n)
	}
	if res.PerModel == nil {
		res.PerModel = map[string]int64{}
	}
	return res, stamp, nil
}

// canFastDelete reports whether a delete of roots is a single statement: one
// row, no delete observers and no foreign key that would make other rows change.
func (e *Engine) canFastDelete(table *schema.TableMetadata, roots []store.Row) bool {
	if len(roots) != 1 || e.hasObservers(table.Name, preDelete, postDelete) {
		return false
	}
	for _, edge := range e.graph.Dependents(table.Name) {
		if edge.Disposition == schema.Cascade || edge.Disposition == schema.SetNull {
			return false
		}
	}
	return true
}

func (e *Engine) fastDelete(ctx context.Context, table *schema.TableMetadata, root store.Row, force bool, stamp time.Time) (Result, []tally, error) {
	var res Result
	rows := []store.Row{root}
	where, err := matchRows(table, rows)
	if err != nil {
		return res, nil, err
	}
	mode := modeFor(table, force)
	n, err := e.apply(ctx, table, mode, where, stamp)
	if err != nil {
		return res, nil, err
	}
	res.add(table.Name, n)
	return res, []tally{{table.Name, actionFor(mode), n}}, nil
}

// execute applies plan: pre-delete observers root-to-leaf, nullification,
// soft marks and physical deletes leaf-to-root, then post-delete observers
// root-to-leaf.
func (e *Engine) execute(ctx context.Context, plan *Plan, stamp time.Time) (Result, []tally, error) {
	var res Result
	var tallies []tally

	for _, b := range plan.Batches {
		if err := e.notify(ctx, b.Table, preDelete, accessors(b.Rows)); err != nil {
			return res, nil, err
		}
	}

	for _, nb := range plan.Nullify {
		where, err := matchRows(nb.Table, nb.Rows)
		if err != nil {
			return res, nil, err
		}
		n, err := e.store.Update(ctx, builder.Update(nb.Table).Set(nb.Column, nil).Where(where))
		if err != nil {
			return res, nil, fmt.Errorf("nullify %s.%s: %w", nb.Table.Name, nb.Column, err)
		}
		for _, row := range nb.Rows {
			row[nb.Column] = nil
		}
		e.logger.DebugContext(ctx, "permanent: nullified", "table", nb.Table.Name, "column", nb.Column, "rows", n)
		tallies = append(tallies, tally{nb.Table.Name, actionNullified, n})
	}

	for _, mode := range []Mode{SoftMark, HardDelete} {
		for i := len(plan.Batches) - 1; i >= 0; i-- {
			b := plan.Batches[i]
			if b.Mode != mode || len(b.Rows) == 0 {
				continue
			}
			where, err := matchRows(b.Table, b.Rows)
			if err != nil {
				return res, nil, err
			}
			n, err := e.apply(ctx, b.Table, b.Mode, where, stamp)
			if err != nil {
				return res, nil, err
			}
			if b.Mode == SoftMark {
				for _, row := range b.Rows {
					row[b.Table.SoftDelete.Column] = stamp
				}
			}
			e.logger.DebugContext(ctx, "permanent: batch", "table", b.Table.Name, "mode", b.Mode.String(), "rows", n)
			res.add(b.Table.Name, n)
			tallies = append(tallies, tally{b.Table.Name, actionFor(b.Mode), n})
		}
	}

	for _, b := range plan.Batches {
		if err := e.notify(ctx, b.Table, postDelete, accessors(b.Rows)); err != nil {
			return res, nil, err
		}
	}
	return res, tallies, nil
}

// apply soft-marks or removes the rows of table matching where.
func (e *Engine) apply(ctx context.Context, table *schema.TableMetadata, mode Mode, where builder.Condition, stamp time.Time) (int64, error) {
	if mode == SoftMark {
		n, err := e.store.Update(ctx, builder.Update(table).Set(table.SoftDelete.Column, stamp).Where(where))
		if err != nil {
			return 0, fmt.Errorf("soft-delete %s: %w", table.Name, err)
		}
		return n, nil
	}
	n, err := e.store.Delete(ctx, builder.Delete(table).Where(where))
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table.Name, err)
	}
	return n, nil
}

func actionFor(mode Mode) string {
	if mode == SoftMark {
		return actionSoftDeleted
	}
	return actionHardDeleted
}

func accessors(rows []store.Row) []Accessor {
	out := make([]Accessor, len(rows))
	for i, row := range rows {
		out[i] = rowAccessor(row)
	}
	return out
}
