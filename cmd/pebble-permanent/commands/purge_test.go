package commands

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/permanent"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
	"github.com/marshallshelly/pebble-permanent/pkg/store/memstore"
)

func TestPlanPurge(t *testing.T) {
	withModels(t, shopModels)
	s, err := loadSession()
	if err != nil {
		t.Fatal(err)
	}
	g := s.registry.Graph()
	engine, err := permanent.New(memstore.New(g), s.registry, permanent.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	st := engine.Store()

	table := func(name string) *schema.TableMetadata {
		tm, ok := g.Table(name)
		if !ok {
			t.Fatalf("no table %s", name)
		}
		return tm
	}
	insert := func(name string, values map[string]any) store.Row {
		q := builder.Insert(table(name))
		for col, v := range values {
			q.Value(col, v)
		}
		row, err := st.Insert(ctx, q)
		if err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
		return row
	}

	now := time.Now()
	old := now.Add(-60 * 24 * time.Hour)
	region := insert("region", nil)
	customer := insert("customer", map[string]any{"name": "acme", "region_id": region["id"], "removed": old})
	purchase := insert("purchase", map[string]any{"customer_id": customer["id"], "removed": old})
	insert("purchase", map[string]any{"customer_id": customer["id"]})
	insert("invoice", map[string]any{"purchase_id": purchase["id"]})

	report := purgeReport{Cutoff: now.Add(-30 * 24 * time.Hour), Matched: make(map[string]int64)}
	tables, err := selectTables(g, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	targets, plan, err := planPurge(ctx, engine, tables, &report)
	if err != nil {
		t.Fatalf("planPurge() error = %v", err)
	}

	if len(targets) != 2 || sum(report.Matched) != 2 {
		t.Errorf("matched = %v over %d target(s), want 2 rows in 2 tables", report.Matched, len(targets))
	}
	want := map[string]int64{"customer": 1, "purchase": 2, "invoice": 1}
	for name, n := range want {
		if report.Planned[name] != n {
			t.Errorf("planned[%s] = %d, want %d", name, report.Planned[name], n)
		}
	}
	if plan.Total() != 4 {
		t.Errorf("plan.Total() = %d, want 4 (the live purchase goes too)", plan.Total())
	}

	// planning changes nothing
	n, err := st.Count(ctx, builder.SelectView(table("purchase"), builder.ViewAll))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("purchases after planning = %d, want 2", n)
	}

	var removed int64
	for _, target := range targets {
		res, err := engine.DeleteQuery(ctx, target.query, true)
		if err != nil {
			t.Fatalf("purge %s: %v", target.table.Name, err)
		}
		removed += res.Total
	}
	if removed != plan.Total() {
		t.Errorf("removed %d row(s), plan said %d", removed, plan.Total())
	}
}
