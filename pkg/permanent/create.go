package permanent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/runtime"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

// outcome is how GetRestoreOrCreate satisfied a lookup.
type outcome int

const (
	found outcome = iota
	restored
	created
)

type lookupResult[T any] struct {
	record  T
	outcome outcome
}

// insert stores the record behind acc and loads the stored row back into
// it. Zero values of generated columns and of columns with a default are
// left to the database.
func (e *Engine) insert(ctx context.Context, table *schema.TableMetadata, acc Accessor) error {
	q := builder.Insert(table)
	for _, col := range table.Columns {
		v, _ := acc.Get(col.Name)
		if isZero(v) && (isGenerated(col) || col.Default != nil) {
			continue
		}
		q.Value(col.Name, v)
	}
	row, err := e.store.Insert(ctx, q)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table.Name, err)
	}
	if row == nil {
		return fmt.Errorf("insert %s: %w", table.Name, runtime.ErrDuplicateKey)
	}
	return load(table, acc, row)
}

// getRestoreOrCreate finds the row of table matching key in any view. A
// soft-deleted match is restored, a missing one is created from defaults
// with key applied. Concurrent calls for one key share a single lookup, and
// a lookup that loses an insert race is retried once. Only the caller that
// ran the shared lookup reports it as restored or created; the others see
// the row as found.
func getRestoreOrCreate[T any](ctx context.Context, e *Engine, table *schema.TableMetadata, key map[string]any, defaults T) (*T, outcome, error) {
	if len(key) == 0 {
		return nil, found, fmt.Errorf("get-restore-or-create %s: empty key", table.Name)
	}
	for column := range key {
		if table.GetColumnByName(column) == nil {
			return nil, found, fmt.Errorf("get-restore-or-create %s: unknown column %q", table.Name, column)
		}
	}

	ctx, span := e.tracer.Start(ctx, "permanent.GetRestoreOrCreate", trace.WithAttributes(
		attribute.String("permanent.table", table.Name),
	))
	var err error
	defer func() { endSpan(span, err) }()

	ran := false
	run := func() (any, error) {
		ran = true
		for attempt := 0; ; attempt++ {
			res, err := lookupOrCreate(ctx, e, table, key, defaults)
			if err != nil && attempt == 0 && errors.Is(err, runtime.ErrDuplicateKey) {
				e.logger.DebugContext(ctx, "permanent: lost insert race, retrying", "table", table.Name)
				continue
			}
			return res, err
		}
	}

	var v any
	if e.bound {
		// a transaction's result must not be shared with other callers
		v, err = run()
	} else {
		v, err, _ = e.flight.Do(flightKey(table, key), run)
	}
	if err != nil {
		return nil, found, err
	}
	res := v.(lookupResult[T])
	if !ran {
		res.outcome = found
	}
	out := res.record
	span.SetAttributes(attribute.Int("permanent.outcome", int(res.outcome)))
	if res.outcome == restored {
		e.metrics.add(table.Name, actionRestored, 1)
	}
	return &out, res.outcome, nil
}

func lookupOrCreate[T any](ctx context.Context, e *Engine, table *schema.TableMetadata, key map[string]any, defaults T) (lookupResult[T], error) {
	var res lookupResult[T]
	err := e.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		bound := e.withStore(tx)

		q := builder.SelectView(table, builder.ViewAll).ForUpdate()
		for _, column := range slices.Sorted(maps.Keys(key)) {
			q.Where(builder.Eq(column, key[column]))
		}
		rows, err := tx.Select(ctx, q)
		if err != nil {
			return err
		}

		switch len(rows) {
		case 0:
			res.record = defaults
			acc, err := AccessorFor(table, &res.record)
			if err != nil {
				return err
			}
			for column, v := range key {
				if err := acc.Set(column, v); err != nil {
					return err
				}
			}
			if table.IsSoftDeletable() {
				if err := acc.Set(table.SoftDelete.Column, table.SoftDelete.Unset); err != nil {
					return err
				}
			}
			res.outcome = created
			return bound.insert(ctx, table, acc)

		case 1:
			res.record, err = decode[T](table, rows[0])
			if err != nil {
				return err
			}
			res.outcome = found
			if !table.IsSoftDeletable() || isLive(table, rows[0][table.SoftDelete.Column]) {
				return nil
			}
			acc, err := AccessorFor(table, &res.record)
			if err != nil {
				return err
			}
			res.outcome = restored
			return bound.restoreOne(ctx, table, acc)

		default:
			return fmt.Errorf("get-restore-or-create %s: %w", table.Name, ErrMultipleRows)
		}
	})
	return res, err
}

func flightKey(table *schema.TableMetadata, key map[string]any) string {
	var sb strings.Builder
	sb.WriteString(table.Name)
	for _, column := range slices.Sorted(maps.Keys(key)) {
		fmt.Fprintf(&sb, "\x00%s=%v", column, keyValue(key[column]))
	}
	return sb.String()
}

// isLive reports whether v is the live marker of table.
func isLive(table *schema.TableMetadata, v any) bool {
	unset := table.SoftDelete.Unset
	if unset == nil {
		return indirect(v) == nil
	}
	return keyValue(v) == keyValue(unset)
}

// uniqueKey returns the first unique key other than the primary key whose
// columns are all set on acc, or nil.
func uniqueKey(table *schema.TableMetadata, acc Accessor) map[string]any {
	for _, cols := range table.UniqueKeys() {
		key := make(map[string]any, len(cols))
		for _, c := range cols {
			v, _ := acc.Get(c)
			if v == nil {
				key = nil
				break
			}
			key[c] = v
		}
		if key != nil {
			return key
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

func isZero(v any) bool {
	return v == nil || reflect.ValueOf(v).IsZero()
}
