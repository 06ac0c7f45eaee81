package permanent

import (
	"context"
	"slices"
	"sync"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// Event is passed to observers.
type Event struct {
	Table  *schema.TableMetadata
	Record Accessor
}

// Observer reacts to a record being deleted or restored. A non-nil error
// aborts the surrounding transaction.
type Observer func(ctx context.Context, ev Event) error

type hookKind int

const (
	preDelete hookKind = iota
	postDelete
	preRestore
	postRestore
)

// Observers holds the observer lists of one table. They run synchronously in
// registration order.
type Observers struct {
	mu    sync.RWMutex
	lists [4][]Observer
}

// OnPreDelete adds observers called before any row of the delete changes.
func (o *Observers) OnPreDelete(fns ...Observer) *Observers { return o.add(preDelete, fns) }

// OnPostDelete adds observers called after every row of the delete changed.
func (o *Observers) OnPostDelete(fns ...Observer) *Observers { return o.add(postDelete, fns) }

// OnPreRestore adds observers called before a single record is restored.
func (o *Observers) OnPreRestore(fns ...Observer) *Observers { return o.add(preRestore, fns) }

// OnPostRestore adds observers called after a single record was restored.
func (o *Observers) OnPostRestore(fns ...Observer) *Observers { return o.add(postRestore, fns) }

func (o *Observers) add(kind hookKind, fns []Observer) *Observers {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lists[kind] = append(o.lists[kind], fns...)
	return o
}

func (o *Observers) list(kind hookKind) []Observer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.lists[kind])
}

type hookSet struct {
	mu      sync.Mutex
	byTable map[string]*Observers
}

func newHookSet() *hookSet {
	return &hookSet{byTable: make(map[string]*Observers)}
}

// Observe returns the observer lists for table, creating them on first use.
func (e *Engine) Observe(table string) *Observers {
	e.hooks.mu.Lock()
	defer e.hooks.mu.Unlock()
	o, ok := e.hooks.byTable[table]
	if !ok {
		o = &Observers{}
		e.hooks.byTable[table] = o
	}
	return o
}

func (e *Engine) observers(table string, kind hookKind) []Observer {
	e.hooks.mu.Lock()
	o, ok := e.hooks.byTable[table]
	e.hooks.mu.Unlock()
	if !ok {
		return nil
	}
	return o.list(kind)
}

func (e *Engine) hasObservers(table string, kinds ...hookKind) bool {
	for _, k := range kinds {
		if len(e.observers(table, k)) > 0 {
			return true
		}
	}
	return false
}

// notify calls the observers of kind for each record. Junction tables are
// never notified.
func (e *Engine) notify(ctx context.Context, table *schema.TableMetadata, kind hookKind, records []Accessor) error {
	if table.Junction {
		return nil
	}
	fns := e.observers(table.Name, kind)
	if len(fns) == 0 {
		return nil
	}
	for _, rec := range records {
		ev := Event{Table: table, Record: rec}
		for _, fn := range fns {
			if err := fn(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}
