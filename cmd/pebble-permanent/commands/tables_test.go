package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

const shopModels = `package models

import (
	"time"

	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

type Region struct {
	ID int64 ` + "`po:\"id,primaryKey,bigserial\"`" + `
}

type Customer struct {
	ID       int64  ` + "`po:\"id,primaryKey,bigserial\"`" + `
	Name     string ` + "`po:\"name,text,notNull\"`" + `
	RegionID *int64 ` + "`po:\"region_id,fk:region(id),onDelete:cascade\"`" + `
	schema.Permanent
}

type Purchase struct {
	ID         int64      ` + "`po:\"id,primaryKey,bigserial\"`" + `
	CustomerID int64      ` + "`po:\"customer_id,notNull,fk:customer(id),onDelete:cascade\"`" + `
	Removed    *time.Time ` + "`po:\"removed,timestamptz,softDelete\"`" + `
}

type Invoice struct {
	ID         int64 ` + "`po:\"id,primaryKey,bigserial\"`" + `
	PurchaseID int64 ` + "`po:\"purchase_id,notNull,fk:purchase(id),onDelete:cascade\"`" + `
}

type Receipt struct {
	ID         int64 ` + "`po:\"id,primaryKey,bigserial\"`" + `
	CustomerID int64 ` + "`po:\"customer_id,notNull,fk:customer(id),onDelete:noaction\"`" + `
}
`

func withModels(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "models.go"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	prevModels, prevConfig, prevJSON := modelsPath, configPath, jsonOutput
	modelsPath, configPath, jsonOutput = dir, "", true
	t.Cleanup(func() { modelsPath, configPath, jsonOutput = prevModels, prevConfig, prevJSON })
}

func TestLoadSession(t *testing.T) {
	withModels(t, shopModels)

	s, err := loadSession()
	if err != nil {
		t.Fatalf("loadSession() error = %v", err)
	}
	if !s.registry.HasTable("customer") || !s.registry.HasTable("invoice") {
		t.Errorf("tables = %v", s.registry.AllNames())
	}
	if s.db != nil || s.engine != nil {
		t.Error("loadSession should not connect")
	}
}

func TestConnectRequiresURL(t *testing.T) {
	withModels(t, shopModels)
	t.Setenv("PEBBLE_DATABASE_URL", "")
	prev := dbURL
	dbURL = ""
	t.Cleanup(func() { dbURL = prev })

	s, err := loadSession()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.connect(t.Context()); err == nil || !strings.Contains(err.Error(), "--db") {
		t.Errorf("connect() error = %v, want --db required", err)
	}
}

func TestRunCheck(t *testing.T) {
	withModels(t, shopModels)

	err := runCheck()
	if err == nil {
		t.Fatal("expected hazard error: customer cascades into plain region")
	}
	if !strings.Contains(err.Error(), "1 relation hazard") {
		t.Errorf("error = %v", err)
	}
}

func TestSelectTables(t *testing.T) {
	withModels(t, shopModels)
	s, err := loadSession()
	if err != nil {
		t.Fatal(err)
	}
	g := s.registry.Graph()

	tests := []struct {
		name     string
		names    []string
		softOnly bool
		want     string
		wantErr  string
	}{
		{name: "all in order", want: "region,customer,purchase,invoice,receipt"},
		{name: "soft only", softOnly: true, want: "customer,purchase"},
		{name: "named keep graph order", names: []string{"invoice", "customer"}, want: "customer,invoice"},
		{name: "unknown", names: []string{"nope"}, wantErr: "unknown table"},
		{name: "plain named with soft only", names: []string{"invoice"}, softOnly: true, wantErr: "not soft-deletable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables, err := selectTables(g, tt.names, tt.softOnly)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, table := range tables {
				got = append(got, table.Name)
			}
			if strings.Join(got, ",") != tt.want && !sameSet(got, tt.want) {
				t.Errorf("tables = %v, want %s", got, tt.want)
			}
			for i := 1; i < len(tables); i++ {
				if g.Rank(tables[i-1].Name) > g.Rank(tables[i].Name) {
					t.Errorf("%s listed before %s", tables[i-1].Name, tables[i].Name)
				}
			}
		})
	}
}

func sameSet(got []string, want string) bool {
	w := strings.Split(want, ",")
	if len(got) != len(w) {
		return false
	}
	seen := make(map[string]bool, len(got))
	for _, g := range got {
		seen[g] = true
	}
	for _, name := range w {
		if !seen[name] {
			return false
		}
	}
	return true
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "30d", want: 30 * 24 * time.Hour},
		{in: "1.5d", want: 36 * time.Hour},
		{in: "12h", want: 12 * time.Hour},
		{in: "90m", want: 90 * time.Minute},
		{in: "0", want: 0},
		{in: "d", wantErr: true},
		{in: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAge(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAge(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseAge(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRowFormatting(t *testing.T) {
	withModels(t, shopModels)
	s, err := loadSession()
	if err != nil {
		t.Fatal(err)
	}
	customer, _ := s.registry.Graph().Table("customer")

	removed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	row := store.Row{"id": int64(7), "name": strings.Repeat("x", 40), "removed": removed}

	if got := rowKey(customer, row); got != "7" {
		t.Errorf("rowKey = %q, want 7", got)
	}
	summary := rowSummary(customer, row)
	if !strings.HasPrefix(summary, "name=xxx") || !strings.HasSuffix(summary, "...") {
		t.Errorf("rowSummary = %q", summary)
	}
	if strings.Contains(summary, "removed") || strings.Contains(summary, "id=") {
		t.Errorf("rowSummary should skip the key and removed columns: %q", summary)
	}
	if got := formatStamp(nil); got != "" {
		t.Errorf("formatStamp(nil) = %q", got)
	}
	if got := formatStamp(removed); got != removed.Local().Format("2006-01-02 15:04:05") {
		t.Errorf("formatStamp = %q", got)
	}
}

func TestPurgeQuery(t *testing.T) {
	withModels(t, shopModels)
	s, err := loadSession()
	if err != nil {
		t.Fatal(err)
	}
	purchase, _ := s.registry.Graph().Table("purchase")

	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	q := purgeQuery(purchase, cutoff)
	if q.View() != builder.ViewDeleted {
		t.Errorf("view = %s, want deleted", q.View())
	}
	sql, args, err := q.ToSQL()
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT * FROM purchase WHERE purchase.removed IS NOT NULL AND removed < $1"
	if sql != want {
		t.Errorf("sql = %q\nwant  %q", sql, want)
	}
	if len(args) != 1 || args[0] != cutoff {
		t.Errorf("args = %v", args)
	}

	trash := deletedRows(purchase, 10)
	sql, _, err = trash.ToSQL()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(sql, "ORDER BY removed DESC LIMIT 10") {
		t.Errorf("trash sql = %q", sql)
	}
}
