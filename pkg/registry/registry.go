// Package registry holds the registered models and the relation graph
// derived from their foreign keys.
package registry

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// ErrRegistryFrozen is returned when a model is registered after the relation
// graph has been built.
var ErrRegistryFrozen = errors.New("registry is frozen: relation graph already built")

// Registry is a thread-safe registry for table metadata.
type Registry struct {
	mu     sync.RWMutex
	parser *schema.Parser
	tables map[reflect.Type]*schema.TableMetadata
	names  map[string]*schema.TableMetadata
	graph  *Graph
}

// NewRegistry creates a new Registry instance.
func NewRegistry() *Registry {
	return &Registry{
		parser: schema.NewParser(),
		tables: make(map[reflect.Type]*schema.TableMetadata),
		names:  make(map[string]*schema.TableMetadata),
	}
}

// Register registers a model type and extracts its metadata.
func (r *Registry) Register(model any) error {
	modelType := reflect.TypeOf(model)

	// Dereference pointer
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	if modelType.Kind() != reflect.Struct {
		return fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[modelType]; ok {
		return nil
	}
	if r.graph != nil {
		return fmt.Errorf("register %s: %w", modelType.Name(), ErrRegistryFrozen)
	}

	// Parse the model
	table, err := r.parser.Parse(modelType)
	if err != nil {
		return fmt.Errorf("failed to parse model %s: %w", modelType.Name(), err)
	}

	// Store in registry
	r.tables[modelType] = table
	r.names[table.Name] = table

	return nil
}

// RegisterMetadata registers table metadata directly without requiring a Go type.
// The CLI uses it for models loaded from source files.
func (r *Registry) RegisterMetadata(table *schema.TableMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[table.Name]; ok {
		return nil
	}
	if r.graph != nil {
		return fmt.Errorf("register %s: %w", table.Name, ErrRegistryFrozen)
	}

	if table.GoType != nil {
		r.tables[table.GoType] = table
	}
	r.names[table.Name] = table

	return nil
}

// Get retrieves TableMetadata by Go type.
func (r *Registry) Get(modelType reflect.Type) (*schema.TableMetadata, error) {
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	r.mu.RLock()
	table, ok := r.tables[modelType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("model type %s not registered", modelType.Name())
	}

	return table, nil
}

// GetByName retrieves TableMetadata by table name.
func (r *Registry) GetByName(tableName string) (*schema.TableMetadata, error) {
	r.mu.RLock()
	table, ok := r.names[tableName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("table %s not registered", tableName)
	}

	return table, nil
}

// GetOrRegister retrieves TableMetadata or registers it if not found.
func (r *Registry) GetOrRegister(model any) (*schema.TableMetadata, error) {
	modelType := reflect.TypeOf(model)
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	r.mu.RLock()
	table, ok := r.tables[modelType]
	r.mu.RUnlock()

	if ok {
		return table, nil
	}

	if err := r.Register(model); err != nil {
		return nil, err
	}
	return r.Get(modelType)
}

// All returns all registered table metadata ordered by table name.
func (r *Registry) All() []*schema.TableMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tables := make([]*schema.TableMetadata, 0, len(r.names))
	for _, name := range slices.Sorted(maps.Keys(r.names)) {
		tables = append(tables, r.names[name])
	}
	return tables
}

// AllNames returns all registered table names, sorted.
func (r *Registry) AllNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.names))
}

// Clear removes all registered models.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tables = make(map[reflect.Type]*schema.TableMetadata)
	r.names = make(map[string]*schema.TableMetadata)
	r.graph = nil
}

// Graph returns the relation graph of all registered models, building it on
// first use. Once built the registry accepts no new models.
func (r *Registry) Graph() *Graph {
	r.mu.RLock()
	g := r.graph
	r.mu.RUnlock()
	if g != nil {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.graph == nil {
		r.graph = buildGraph(r.names)
	}
	return r.graph
}

// Has checks if a model type is registered.
func (r *Registry) Has(modelType reflect.Type) bool {
	// Dereference pointer
	for modelType.Kind() == reflect.Pointer {
		modelType = modelType.Elem()
	}

	r.mu.RLock()
	_, ok := r.tables[modelType]
	r.mu.RUnlock()

	return ok
}

// HasTable checks if a table name is registered.
func (r *Registry) HasTable(tableName string) bool {
	r.mu.RLock()
	_, ok := r.names[tableName]
	r.mu.RUnlock()

	return ok
}

// globalRegistry is the default global registry instance.
var globalRegistry = NewRegistry()

// Register registers a model in the global registry.
func Register(model any) error {
	return globalRegistry.Register(model)
}

// Default returns the global registry.
func Default() *Registry {
	return globalRegistry
}

// GetAllTables returns all registered tables keyed by table name.
func (r *Registry) GetAllTables() map[string]*schema.TableMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tables := make(map[string]*schema.TableMetadata)
	maps.Copy(tables, r.names)

	return tables
}
