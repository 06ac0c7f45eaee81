// Package store defines the storage boundary the soft-delete engine runs on.
//
// Implementations execute the query objects of package builder. pgstore runs
// them against PostgreSQL, memstore evaluates them in process.
package store

import (
	"context"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Store executes builder queries.
type Store interface {
	// Select returns the rows of the query's base table.
	Select(ctx context.Context, q *builder.SelectQuery) ([]Row, error)
	// Count returns the number of rows Select would return.
	Count(ctx context.Context, q *builder.SelectQuery) (int64, error)
	// Update returns the number of rows changed.
	Update(ctx context.Context, q *builder.UpdateQuery) (int64, error)
	// Delete returns the number of rows removed from the query's table.
	Delete(ctx context.Context, q *builder.DeleteQuery) (int64, error)
	// Insert returns the stored row, or nil when a conflict was ignored.
	Insert(ctx context.Context, q *builder.InsertQuery) (Row, error)
	// Atomic runs fn in a transaction, or in a savepoint when the store is
	// already transactional. A non-nil error from fn rolls everything fn did back.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
