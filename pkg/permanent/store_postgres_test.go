//go:build integration

package permanent

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marshallshelly/pebble-permanent/pkg/migration"
	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
	"github.com/marshallshelly/pebble-permanent/pkg/store/pgstore"
)

var (
	pgURL     string
	schemaSeq atomic.Int64
)

// TestMain starts one PostgreSQL container for the package. Every env gets
// a schema of its own in it.
func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("permanent"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start PostgreSQL container: %v\n", err)
		os.Exit(1)
	}
	pgURL, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}
	os.Exit(code)
}

// newTestStore creates the tables of g in a fresh schema and returns a
// store whose connections only see that schema.
func newTestStore(t *testing.T, g *registry.Graph) store.Store {
	t.Helper()
	ctx := context.Background()
	name := fmt.Sprintf("env_%d", schemaSeq.Add(1))

	cfg, err := pgxpool.ParseConfig(pgURL)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = name
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "CREATE SCHEMA "+name)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP SCHEMA "+name+" CASCADE")
	})

	s := migration.NewPlanner().Plan(g)
	require.NoError(t, migration.NewExecutor(pool).Apply(ctx, s), s.UpSQL())
	return pgstore.New(pool)
}
