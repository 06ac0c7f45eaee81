// Package pgstore runs builder queries on PostgreSQL through pgx.
package pgstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/runtime"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

// conn is the part of *pgxpool.Pool and pgx.Tx the store uses.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a store.Store over a connection pool or an open transaction.
type Store struct {
	pool   *pgxpool.Pool
	conn   conn
	tx     pgx.Tx
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger logs every statement at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store on pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, conn: pool}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// FromDB creates a store on the pool of db.
func FromDB(db *runtime.DB, opts ...Option) *Store {
	return New(db.Pool(), opts...)
}

func (s *Store) debug(ctx context.Context, sql string, args []any) {
	s.logger.DebugContext(ctx, "pgstore: query", "sql", sql, "args", len(args), "tx", s.tx != nil)
}

// Select implements store.Store.
func (s *Store) Select(ctx context.Context, q *builder.SelectQuery) ([]store.Row, error) {
	sql, args, err := q.ToSQL()
	if err != nil {
		return nil, err
	}
	return s.query(ctx, sql, args)
}

func (s *Store) query(ctx context.Context, sql string, args []any) ([]store.Row, error) {
	s.debug(ctx, sql, args)
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, runtime.WrapQueryError(sql, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, runtime.WrapQueryError(sql, err)
	}
	out := make([]store.Row, len(maps))
	for i, m := range maps {
		out[i] = store.Row(m)
	}
	return out, nil
}

// Count implements store.Store.
func (s *Store) Count(ctx context.Context, q *builder.SelectQuery) (int64, error) {
	sql, args, err := q.CountSQL()
	if err != nil {
		return 0, err
	}
	s.debug(ctx, sql, args)
	var n int64
	if err := s.conn.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, runtime.WrapQueryError(sql, err)
	}
	return n, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, q *builder.UpdateQuery) (int64, error) {
	sql, args, err := q.ToSQL()
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, sql, args)
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, q *builder.DeleteQuery) (int64, error) {
	sql, args, err := q.ToSQL()
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, sql, args)
}

func (s *Store) exec(ctx context.Context, sql string, args []any) (int64, error) {
	s.debug(ctx, sql, args)
	tag, err := s.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, runtime.WrapQueryError(sql, err)
	}
	return tag.RowsAffected(), nil
}

// Insert implements store.Store. The full stored row is returned.
func (s *Store) Insert(ctx context.Context, q *builder.InsertQuery) (store.Row, error) {
	sql, args, err := q.Returning("*").ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, sql, args)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Atomic implements store.Store. On the pool it opens a transaction; inside
// one it opens a savepoint so a failure does not poison the caller's transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.tx != nil {
		return s.savepoint(ctx, fn)
	}
	if s.pool == nil {
		return runtime.ErrNoConnection
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, s.withTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) savepoint(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	name := "pebble_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := s.tx.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if err := fn(ctx, s); err != nil {
		if _, rbErr := s.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to rollback to savepoint: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if _, err := s.tx.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func (s *Store) withTx(tx pgx.Tx) *Store {
	return &Store{pool: s.pool, conn: tx, tx: tx, logger: s.logger}
}
