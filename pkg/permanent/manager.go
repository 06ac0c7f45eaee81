package permanent

import (
	"context"
	"fmt"
	"reflect"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/runtime"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// Manager is the typed entry point for one model.
type Manager[T any] struct {
	engine *Engine
	table  *schema.TableMetadata
}

// NewManager returns the manager of model T, which must be registered.
func NewManager[T any](e *Engine) (*Manager[T], error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", runtime.ErrInvalidModel, t)
	}
	table, err := e.tableOf(t)
	if err != nil {
		return nil, err
	}
	return &Manager[T]{engine: e, table: table}, nil
}

// Table returns the model metadata.
func (m *Manager[T]) Table() *schema.TableMetadata { return m.table }

// Col returns the column mapped to a Go field of the model.
func (m *Manager[T]) Col(goField string) string { return builder.Field(m.table, goField) }

// Observe returns the observer lists of the model.
func (m *Manager[T]) Observe() *Observers { return m.engine.Observe(m.table.Name) }

// Objects sees live rows.
func (m *Manager[T]) Objects() *QuerySet[T] {
	return newQuerySet[T](m.engine, m.table, builder.ViewLive)
}

// Deleted sees soft-deleted rows. It is always empty for models without a
// removed column.
func (m *Manager[T]) Deleted() *QuerySet[T] {
	qs := newQuerySet[T](m.engine, m.table, builder.ViewDeleted)
	if !m.table.IsSoftDeletable() {
		qs.query.Where(builder.In(m.table.Columns[0].Name))
	}
	return qs
}

// All sees every row.
func (m *Manager[T]) All() *QuerySet[T] {
	return newQuerySet[T](m.engine, m.table, builder.ViewAll)
}

// Create inserts record and loads the stored row back into it. When the
// model restores on create and a soft-deleted row collides on a unique key,
// that row is restored and loaded instead; a live collision fails with
// ErrDuplicateKey.
func (m *Manager[T]) Create(ctx context.Context, record *T) error {
	acc, err := AccessorFor(m.table, record)
	if err != nil {
		return err
	}
	if m.table.RestoreOnCreate && m.table.IsSoftDeletable() {
		if key := uniqueKey(m.table, acc); key != nil {
			got, oc, err := getRestoreOrCreate(ctx, m.engine, m.table, key, *record)
			if err != nil {
				return err
			}
			if oc == found {
				return fmt.Errorf("create %s: %w", m.table.Name, runtime.ErrDuplicateKey)
			}
			*record = *got
			return nil
		}
	}
	return m.engine.insert(ctx, m.table, acc)
}

// GetRestoreOrCreate returns the record matching key in any view. A
// soft-deleted match is restored, and a missing record is created from
// defaults with key applied. created reports the latter. key maps column
// names to values.
func (m *Manager[T]) GetRestoreOrCreate(ctx context.Context, key map[string]any, defaults T) (*T, bool, error) {
	got, oc, err := getRestoreOrCreate(ctx, m.engine, m.table, key, defaults)
	if err != nil {
		return nil, false, err
	}
	return got, oc == created, nil
}

// Delete deletes record with its dependents. See Engine.DeleteRecord.
func (m *Manager[T]) Delete(ctx context.Context, record *T, force bool) (Result, error) {
	return m.engine.DeleteRecord(ctx, record, force)
}

// Restore makes a soft-deleted record live. See Engine.RestoreRecord.
func (m *Manager[T]) Restore(ctx context.Context, record *T) error {
	return m.engine.RestoreRecord(ctx, record)
}
