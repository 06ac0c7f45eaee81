package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-permanent/cmd/pebble-permanent/output"
	"github.com/marshallshelly/pebble-permanent/pkg/permanent"
)

// checkCmd reports relation hazards
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check model relations for soft-delete hazards",
	Long: `Check every foreign key between the loaded models.

A CASCADE from a soft-deletable model to one that is removed physically is
reported: deleting the referenced row would remove it for real and leave the
soft-deleted rows pointing at nothing.

The command exits with an error when hazards are found.

Examples:
  pebble-permanent check --models ./internal/models
  pebble-permanent check --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck()
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

type checkReport struct {
	Tables   int                `json:"tables"`
	Soft     []string           `json:"soft_deletable"`
	Hazards  []permanent.Hazard `json:"hazards"`
	Relation int                `json:"relations"`
}

func runCheck() error {
	s, err := loadSession()
	if err != nil {
		return err
	}

	g := s.registry.Graph()
	report := checkReport{
		Tables:   len(g.Order()),
		Relation: len(g.Edges()),
		Hazards:  permanent.CheckRelations(g),
	}
	for _, name := range g.Order() {
		if table, _ := g.Table(name); table.IsSoftDeletable() {
			report.Soft = append(report.Soft, name)
		}
	}

	if jsonOutput {
		if err := output.JSON(report); err != nil {
			return err
		}
	} else {
		output.Section("Relation Check")
		output.Info("%d table(s), %d soft-deletable, %d relation(s)", report.Tables, len(report.Soft), report.Relation)
		if verbose {
			for _, name := range report.Soft {
				output.Item(output.StatusDeleted, "%s", name)
			}
		}
		output.Muted("")
		for _, h := range report.Hazards {
			output.Warning("%s", h.ID)
			output.Item(output.StatusHazard, "%s", h.Message)
			output.Muted("  HINT: %s", h.Hint)
		}
	}

	if len(report.Hazards) > 0 {
		return fmt.Errorf("%d relation hazard(s) found", len(report.Hazards))
	}
	if !jsonOutput {
		output.Success("No relation hazards found")
	}
	return nil
}
