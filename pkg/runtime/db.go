package runtime

import (
	"context"
	"fmt"
	"maps"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB owns the connection pool the stores and the migration executor share.
type DB struct {
	pool   *pgxpool.Pool
	config *Config
}

// NewDB wraps a pool opened elsewhere.
func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{
		pool:   pool,
		config: &Config{},
	}
}

// Connect opens a pool for config and pings it.
func Connect(ctx context.Context, config *Config) (*DB, error) {
	poolConfig, err := poolConfig(config)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		pool:   pool,
		config: config,
	}, nil
}

// ConnectWithURL opens a pool for a connection URL with default settings.
func ConnectWithURL(ctx context.Context, url string) (*DB, error) {
	cfg := DefaultConfig()
	cfg.URL = url
	return Connect(ctx, cfg)
}

func poolConfig(config *Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.MaxConns > 0 {
		pc.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		pc.MinConns = config.MinConns
	}
	// parameters given in the URL win
	params := config.runtimeParams()
	maps.Copy(params, pc.ConnConfig.RuntimeParams)
	pc.ConnConfig.RuntimeParams = params
	return pc, nil
}

// Config returns the configuration the pool was opened with.
func (db *DB) Config() *Config {
	return db.config
}

// Pool returns the underlying pgxpool.Pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return ErrNoConnection
	}
	return db.pool.Ping(ctx)
}
