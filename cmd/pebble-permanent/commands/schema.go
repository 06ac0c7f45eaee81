package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-permanent/cmd/pebble-permanent/output"
	"github.com/marshallshelly/pebble-permanent/pkg/migration"
)

var (
	// Schema flags
	schemaOut     string
	schemaName    string
	schemaApply   bool
	schemaDown    bool
	noIfNotExists bool
	noLiveIndexes bool
)

// schemaCmd renders DDL for the loaded models
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate CREATE TABLE statements for the models",
	Long: `Generate DDL for every loaded model, referenced tables first.

Soft-deletable tables get a partial index over their primary key restricted
to live rows.

Examples:
  pebble-permanent schema                          # Print the up script
  pebble-permanent schema --down                   # Print the down script
  pebble-permanent schema --out ./migrations       # Write {version}_{name}.up/down.sql
  pebble-permanent schema --apply --db $DATABASE   # Create the tables`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchema(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().StringVarP(&schemaOut, "out", "o", "", "Directory to write migration files to")
	schemaCmd.Flags().StringVarP(&schemaName, "name", "n", "create_tables", "Migration name used with --out")
	schemaCmd.Flags().BoolVar(&schemaApply, "apply", false, "Execute the up script against --db")
	schemaCmd.Flags().BoolVar(&schemaDown, "down", false, "Print the down script instead")
	schemaCmd.Flags().BoolVar(&noIfNotExists, "no-if-not-exists", false, "Omit IF NOT EXISTS / IF EXISTS")
	schemaCmd.Flags().BoolVar(&noLiveIndexes, "no-live-indexes", false, "Skip partial indexes over live rows")
}

func runSchema(ctx context.Context) error {
	s, err := loadSession()
	if err != nil {
		return err
	}

	planner := migration.NewPlannerWithOptions(migration.PlannerOptions{
		IfNotExists: !noIfNotExists,
		LiveIndexes: !noLiveIndexes,
	})
	plan := planner.Plan(s.registry.Graph())

	switch {
	case schemaOut != "":
		if err := writeSchema(plan); err != nil {
			return err
		}
	case jsonOutput:
		if err := output.JSON(plan); err != nil {
			return err
		}
	case schemaDown:
		fmt.Print(plan.DownSQL())
	case !schemaApply:
		fmt.Print(plan.UpSQL())
	}

	if !schemaApply {
		return nil
	}

	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.close()

	executor := migration.NewExecutor(s.db.Pool())
	if err := executor.Apply(ctx, plan); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if !jsonOutput {
		output.Success("Applied %d statement(s)", len(plan.Up))
	}
	return nil
}

func writeSchema(plan *migration.Schema) error {
	if err := os.MkdirAll(schemaOut, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", schemaOut, err)
	}
	version := migration.GenerateVersion()
	upPath := filepath.Join(schemaOut, migration.GenerateFileName(version, schemaName, "up"))
	downPath := filepath.Join(schemaOut, migration.GenerateFileName(version, schemaName, "down"))

	if err := os.WriteFile(upPath, []byte(plan.UpSQL()), 0o644); err != nil {
		return fmt.Errorf("failed to write up migration: %w", err)
	}
	if err := os.WriteFile(downPath, []byte(plan.DownSQL()), 0o644); err != nil {
		return fmt.Errorf("failed to write down migration: %w", err)
	}

	if !jsonOutput {
		output.Success("Created migration: %s", version)
		output.Muted("  Up:   %s", upPath)
		output.Muted("  Down: %s", downPath)
	}
	return nil
}
