//go:build !integration

package permanent

import (
	"testing"

	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
	"github.com/marshallshelly/pebble-permanent/pkg/store/memstore"
)

// newTestStore returns an empty in-process store for g. Build with the
// integration tag to run the same tests on PostgreSQL.
func newTestStore(_ *testing.T, g *registry.Graph) store.Store {
	return memstore.New(g)
}
