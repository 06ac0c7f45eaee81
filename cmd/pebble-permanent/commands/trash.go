package commands

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-permanent/cmd/pebble-permanent/output"
	"github.com/marshallshelly/pebble-permanent/cmd/pebble-permanent/tui"
	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
	"github.com/marshallshelly/pebble-permanent/pkg/store"
)

var trashLimit int

// trashCmd browses soft-deleted rows
var trashCmd = &cobra.Command{
	Use:   "trash [table...]",
	Short: "Browse and restore soft-deleted rows",
	Long: `Open an interactive list of soft-deleted rows, most recently removed first.

Restoring a row clears its removed stamp only; rows deleted along with it
stay deleted. With --json the rows are printed instead.

Examples:
  pebble-permanent trash --db $DATABASE
  pebble-permanent trash posts --limit 500
  pebble-permanent trash comments --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrash(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(trashCmd)

	trashCmd.Flags().IntVar(&trashLimit, "limit", 100, "Maximum rows loaded per table")
}

type trashRow struct {
	table *schema.TableMetadata
	row   store.Row
}

type trashEntry struct {
	Table   string    `json:"table"`
	Key     string    `json:"key"`
	Removed string    `json:"removed"`
	Row     store.Row `json:"row"`
}

func runTrash(ctx context.Context, names []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	tables, err := selectTables(s.registry.Graph(), names, true)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return fmt.Errorf("no soft-deletable models found")
	}
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.close()

	// rows backs the list items by table and key; reloading replaces it.
	// The UI runs load and restore on its own goroutines.
	var mu sync.Mutex
	rows := make(map[string]trashRow)
	load := func(ctx context.Context) ([]tui.TrashItem, error) {
		mu.Lock()
		defer mu.Unlock()
		clear(rows)
		var items []tui.TrashItem
		for _, table := range tables {
			found, err := s.store.Select(ctx, deletedRows(table, trashLimit))
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", table.Name, err)
			}
			for _, row := range found {
				item := tui.TrashItem{
					Table:   table.Name,
					Key:     rowKey(table, row),
					Removed: formatStamp(row[table.SoftDelete.Column]),
					Summary: rowSummary(table, row),
				}
				rows[item.Table+"/"+item.Key] = trashRow{table: table, row: row}
				items = append(items, item)
			}
		}
		return items, nil
	}

	if jsonOutput {
		items, err := load(ctx)
		if err != nil {
			return err
		}
		entries := make([]trashEntry, len(items))
		for i, item := range items {
			entries[i] = trashEntry{Table: item.Table, Key: item.Key, Removed: item.Removed, Row: rows[item.Table+"/"+item.Key].row}
		}
		return output.JSON(entries)
	}

	restore := func(ctx context.Context, item tui.TrashItem) error {
		mu.Lock()
		tr, ok := rows[item.Table+"/"+item.Key]
		mu.Unlock()
		if !ok {
			return fmt.Errorf("%s #%s is no longer listed", item.Table, item.Key)
		}
		return s.engine.RestoreRow(ctx, tr.table.Name, tr.row)
	}

	restored, err := tui.RunTrashUI(load, restore)
	if err != nil {
		return err
	}
	if restored > 0 {
		output.Success("Restored %d row(s)", restored)
	}
	return nil
}

func deletedRows(table *schema.TableMetadata, limit int) *builder.SelectQuery {
	q := builder.SelectView(table, builder.ViewDeleted).
		OrderByDesc(table.SoftDelete.Column)
	if limit > 0 {
		q.Limit(limit)
	}
	return q
}
