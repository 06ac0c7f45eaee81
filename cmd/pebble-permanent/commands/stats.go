package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-permanent/cmd/pebble-permanent/output"
	"github.com/marshallshelly/pebble-permanent/pkg/builder"
)

// statsCmd counts live and deleted rows
var statsCmd = &cobra.Command{
	Use:   "stats [table...]",
	Short: "Show live and deleted row counts",
	Long: `Count live and soft-deleted rows of every table, or of the named ones.

Tables without a soft-delete column only report their total.

Examples:
  pebble-permanent stats --db $DATABASE
  pebble-permanent stats posts comments --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

type tableStats struct {
	Table         string `json:"table"`
	SoftDeletable bool   `json:"soft_deletable"`
	Live          int64  `json:"live"`
	Deleted       int64  `json:"deleted"`
	Total         int64  `json:"total"`
}

func runStats(ctx context.Context, names []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	tables, err := selectTables(s.registry.Graph(), names, false)
	if err != nil {
		return err
	}
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.close()

	stats := make([]tableStats, 0, len(tables))
	for _, table := range tables {
		st := tableStats{Table: table.Name, SoftDeletable: table.IsSoftDeletable()}
		st.Total, err = s.store.Count(ctx, builder.SelectView(table, builder.ViewAll))
		if err != nil {
			return fmt.Errorf("count %s: %w", table.Name, err)
		}
		st.Live = st.Total
		if st.SoftDeletable {
			st.Deleted, err = s.store.Count(ctx, builder.SelectView(table, builder.ViewDeleted))
			if err != nil {
				return fmt.Errorf("count %s: %w", table.Name, err)
			}
			st.Live = st.Total - st.Deleted
		}
		stats = append(stats, st)
	}

	if jsonOutput {
		return output.JSON(stats)
	}

	output.Section("Row Counts")
	rows := make([][]string, len(stats))
	for i, st := range stats {
		deleted := "-"
		if st.SoftDeletable {
			deleted = fmt.Sprint(st.Deleted)
		}
		rows[i] = []string{st.Table, fmt.Sprint(st.Live), deleted, fmt.Sprint(st.Total)}
	}
	return output.Table([]string{"TABLE", "LIVE", "DELETED", "TOTAL"}, rows)
}
