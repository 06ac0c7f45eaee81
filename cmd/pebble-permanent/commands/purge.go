package commands

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-permanent/cmd/pebble-permanent/output"
	"github.com/marshallshelly/pebble-permanent/cmd/pebble-permanent/tui"
	"github.com/marshallshelly/pebble-permanent/pkg/builder"
	"github.com/marshallshelly/pebble-permanent/pkg/permanent"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

var (
	// Purge flags
	olderThan   string
	purgeYes    bool
	purgeDryRun bool
)

// purgeCmd removes old soft-deleted rows for good
var purgeCmd = &cobra.Command{
	Use:   "purge [table...]",
	Short: "Permanently remove rows deleted before a given age",
	Long: `Force-delete soft-deleted rows whose removed stamp is older than --older-than.

Purging goes through the same cascade as a forced delete: rows depending on
a purged row through CASCADE are removed too, live ones included, and SET
NULL keys are cleared. The prompt counts every row that goes. Tables are
purged dependents first.

Examples:
  pebble-permanent purge --older-than 30d            # Ask before purging every table
  pebble-permanent purge posts --older-than 72h --yes
  pebble-permanent purge --dry-run                   # Only count what would go`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPurge(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().StringVar(&olderThan, "older-than", "30d", "Minimum age of the removed stamp (e.g. 30d, 12h)")
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "Do not ask for confirmation")
	purgeCmd.Flags().BoolVar(&purgeDryRun, "dry-run", false, "Count matching rows without deleting")
}

type purgeTarget struct {
	table *schema.TableMetadata
	query *builder.SelectQuery
	count int64
}

type purgeReport struct {
	Cutoff  time.Time        `json:"cutoff"`
	DryRun  bool             `json:"dry_run"`
	Matched map[string]int64 `json:"matched"`
	Planned map[string]int64 `json:"planned"`
	Cleared map[string]int64 `json:"cleared,omitempty"`
	Removed map[string]int64 `json:"removed,omitempty"`
	Total   int64            `json:"total_removed"`
}

func purgeQuery(table *schema.TableMetadata, cutoff time.Time) *builder.SelectQuery {
	return builder.SelectView(table, builder.ViewDeleted).
		Where(builder.Lt(table.SoftDelete.Column, cutoff))
}

// planPurge counts the rows of tables removed before the report's cutoff
// and collects everything purging them removes, dependents included.
func planPurge(ctx context.Context, engine *permanent.Engine, tables []*schema.TableMetadata, report *purgeReport) ([]purgeTarget, *permanent.Plan, error) {
	plan := &permanent.Plan{Force: true}
	var targets []purgeTarget
	for _, table := range slices.Backward(tables) {
		q := purgeQuery(table, report.Cutoff)
		n, err := engine.Store().Count(ctx, q)
		if err != nil {
			return nil, nil, fmt.Errorf("count %s: %w", table.Name, err)
		}
		report.Matched[table.Name] = n
		if n == 0 {
			continue
		}
		p, err := engine.PlanQuery(ctx, q, true)
		if err != nil {
			return nil, nil, fmt.Errorf("plan %s: %w", table.Name, err)
		}
		if err := plan.Merge(p); err != nil {
			return nil, nil, err
		}
		targets = append(targets, purgeTarget{table: table, query: q, count: n})
	}
	report.Planned = plan.Counts()
	report.Cleared = plan.Cleared()
	return targets, plan, nil
}

func sum(counts map[string]int64) int64 {
	var n int64
	for _, c := range counts {
		n += c
	}
	return n
}

func runPurge(ctx context.Context, names []string) error {
	age, err := parseAge(olderThan)
	if err != nil {
		return err
	}
	s, err := loadSession()
	if err != nil {
		return err
	}
	tables, err := selectTables(s.registry.Graph(), names, true)
	if err != nil {
		return err
	}
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.close()

	report := purgeReport{
		Cutoff:  time.Now().Add(-age),
		DryRun:  purgeDryRun,
		Matched: make(map[string]int64),
	}
	targets, plan, err := planPurge(ctx, s.engine, tables, &report)
	if err != nil {
		return err
	}
	matched := sum(report.Matched)
	planned := plan.Total()

	if !jsonOutput {
		output.Section("Purge")
		output.Info("Rows removed before %s", report.Cutoff.Local().Format(time.RFC3339))
		for _, b := range plan.Batches {
			output.Item(output.StatusPurging, "%-24s %d", b.Table.Name, len(b.Rows))
		}
		if extra := planned - matched; extra > 0 {
			output.Item(output.StatusHazard, "%d of them are live or newer rows removed through CASCADE", extra)
		}
		if cleared := sum(report.Cleared); cleared > 0 {
			output.Item(output.StatusLive, "%d foreign key(s) set to NULL", cleared)
		}
		output.Muted("")
	}

	if planned == 0 || purgeDryRun {
		if jsonOutput {
			return output.JSON(report)
		}
		if planned == 0 {
			output.Info("Nothing to purge")
		}
		return nil
	}

	if !purgeYes {
		if jsonOutput {
			return fmt.Errorf("--yes is required with --json")
		}
		msg := fmt.Sprintf("Permanently remove %d row(s) from %d table(s)?", planned, len(report.Planned))
		if extra := planned - matched; extra > 0 {
			msg += fmt.Sprintf("\n%d of them were never soft-deleted or are newer than the cutoff.", extra)
		}
		ok, err := tui.Confirm("Confirm Purge", msg+"\nThis cannot be undone.")
		if err != nil {
			return err
		}
		if !ok {
			output.Warning("Purge canceled")
			return nil
		}
	}

	var total permanent.Result
	for _, t := range targets {
		if !jsonOutput {
			output.Info("Purging %s...", t.table.Name)
		}
		res, err := s.engine.DeleteQuery(ctx, t.query, true)
		if err != nil {
			return fmt.Errorf("purge %s: %w", t.table.Name, err)
		}
		for table, n := range res.PerModel {
			if total.PerModel == nil {
				total.PerModel = make(map[string]int64)
			}
			total.PerModel[table] += n
		}
		total.Total += res.Total
	}
	report.Removed = total.PerModel
	report.Total = total.Total

	if jsonOutput {
		return output.JSON(report)
	}
	output.Counts(total.PerModel)
	output.Success("Purged %d row(s)", total.Total)
	return nil
}
