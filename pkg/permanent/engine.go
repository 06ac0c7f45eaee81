// Package permanent implements soft deletion over pebble models.
//
// Deleting a record of a soft-deletable model stamps its removed column
// instead of removing the row. Rows depending on it through foreign keys are
// resolved by the ON DELETE action of each key: CASCADE soft-deletes
// soft-deletable dependents and physically deletes the rest, SET NULL clears
// the key, RESTRICT and NO ACTION leave the dependent alone. A forced delete
// removes everything physically.
//
// Reads go through QuerySet, which shows live rows unless asked for deleted
// or all rows.
package permanent

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/runtime"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

const instrumentationName = "github.com/marshallshelly/pebble-permanent/pkg/permanent"

// Engine runs deletes and restores against a store. It is safe for
// concurrent use.
type Engine struct {
	store    store.Store
	registry *registry.Registry
	graph    *registry.Graph
	logger   *slog.Logger
	clock    func() time.Time
	tracer   trace.Tracer
	metrics  *metrics
	hazards  []Hazard
	bound    bool

	// shared by engines bound to transactions of the same store
	hooks  *hookSet
	flight *singleflight.Group

	registerer prometheus.Registerer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the source of removed-at stamps. Defaults to time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithTracer sets the tracer. Defaults to the global otel provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithMetrics registers the engine's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// New creates an engine. Building the engine freezes reg; relation
// hazards found in it are logged as warnings. A nil reg means the
// global registry.
func New(st store.Store, reg *registry.Registry, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("permanent: %w", runtime.ErrNoConnection)
	}
	if reg == nil {
		reg = registry.Default()
	}
	e := &Engine{
		store:    st,
		registry: reg,
		hooks:    newHookSet(),
		flight:   &singleflight.Group{},
		metrics:  newMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}
	if e.registerer != nil {
		if err := e.metrics.register(e.registerer); err != nil {
			return nil, fmt.Errorf("permanent: register metrics: %w", err)
		}
	}

	e.graph = reg.Graph()
	e.hazards = CheckRelations(e.graph)
	for _, h := range e.hazards {
		e.logger.Warn("permanent: relation hazard",
			"id", h.ID, "source", h.Source, "column", h.Column, "target", h.Target, "hint", h.Hint)
	}
	return e, nil
}

// Graph returns the frozen relation graph.
func (e *Engine) Graph() *registry.Graph { return e.graph }

// Hazards returns the configuration hazards found when the engine was built.
func (e *Engine) Hazards() []Hazard { return e.hazards }

// Store returns the store the engine runs on.
func (e *Engine) Store() store.Store { return e.store }

// Atomic runs fn with an engine bound to one transaction of the store, or a
// savepoint when the engine already is. Observers are shared.
func (e *Engine) Atomic(ctx context.Context, fn func(ctx context.Context, e *Engine) error) error {
	return e.store.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		return fn(ctx, e.withStore(tx))
	})
}

func (e *Engine) withStore(st store.Store) *Engine {
	bound := *e
	bound.store = st
	bound.bound = true
	return &bound
}

// Table returns the metadata of a registered model. model is a struct value
// or pointer.
func (e *Engine) Table(model any) (*schema.TableMetadata, error) {
	t := reflect.TypeOf(model)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil model", runtime.ErrInvalidModel)
	}
	return e.tableOf(t)
}

func (e *Engine) tableOf(t reflect.Type) (*schema.TableMetadata, error) {
	table, err := e.registry.Get(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not registered", runtime.ErrInvalidModel, t)
	}
	return table, nil
}

// TableByName returns the metadata of a registered table.
func (e *Engine) TableByName(name string) (*schema.TableMetadata, error) {
	table, ok := e.graph.Table(name)
	if !ok {
		return nil, fmt.Errorf("%w: table %s is not registered", runtime.ErrInvalidModel, name)
	}
	return table, nil
}

// Relation returns the foreign key column of source as a joinable relation.
func (e *Engine) Relation(source, column string) (builder.Relation, error) {
	for _, edge := range e.graph.Edges() {
		if edge.Source == source && edge.Column == column {
			rel, ok := builder.ResolveRelation(e.graph, edge)
			if !ok {
				break
			}
			return rel, nil
		}
	}
	return builder.Relation{}, fmt.Errorf("permanent: %s.%s is not a foreign key to a registered model", source, column)
}
