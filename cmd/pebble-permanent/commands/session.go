package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/marshallshelly/pebble-permanent/cmd/pebble-permanent/output"
	"github.com/marshallshelly/pebble-permanent/pkg/loader"
	"github.com/marshallshelly/pebble-permanent/pkg/permanent"
	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/runtime"
	"github.com/marshallshelly/pebble-permanent/pkg/store/pgstore"
)

// session is what a command needs after flags are parsed: the config, the
// models, and once connected, the database and an engine over it.
type session struct {
	config   *runtime.Config
	registry *registry.Registry
	logger   *slog.Logger
	db       *runtime.DB
	store    *pgstore.Store
	engine   *permanent.Engine
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadSession reads the config and the models. It does not connect.
func loadSession() (*session, error) {
	cfg, err := runtime.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		cfg.URL = dbURL
	}
	path := modelsPath
	if path == "" {
		path = cfg.Models
	}

	reg := registry.NewRegistry()
	n, err := loader.LoadModelsFromPath(path, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("no models found in %s", path)
	}
	if verbose && !jsonOutput {
		output.Muted("Loaded %d model(s) from %s", n, path)
	}

	return &session{config: cfg, registry: reg, logger: newLogger()}, nil
}

// connect opens the database and builds the engine. A connection needs
// --db, a url in the config file, or PEBBLE_DATABASE_URL.
func (s *session) connect(ctx context.Context) error {
	if s.config.URL == "" && configPath == "" {
		return fmt.Errorf("--db flag is required")
	}
	db, err := runtime.Connect(ctx, s.config)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	s.store = pgstore.FromDB(db, pgstore.WithLogger(s.logger))

	engine, err := permanent.New(s.store, s.registry, permanent.WithLogger(s.logger))
	if err != nil {
		db.Close()
		return err
	}
	s.engine = engine
	return nil
}

func (s *session) close() {
	if s.db != nil {
		s.db.Close()
	}
}
