package migration

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/marshallshelly/pebble-permanent/pkg/registry"
	"github.com/marshallshelly/pebble-permanent/pkg/schema"
)

// quoteIdent quotes a PostgreSQL identifier (table name, column name, etc.)
// to handle reserved keywords and special characters.
func quoteIdent(name string) string {
	return fmt.Sprintf(`"%s"`, name)
}

// PlannerOptions configures DDL generation.
type PlannerOptions struct {
	// IfNotExists adds IF NOT EXISTS to CREATE TABLE and CREATE INDEX.
	// Default: true
	IfNotExists bool

	// LiveIndexes adds a partial index over the primary key of every
	// soft-deletable table, restricted to live rows.
	// Default: true
	LiveIndexes bool
}

// Planner generates DDL from table metadata.
type Planner struct {
	options PlannerOptions
}

// NewPlanner creates a planner with default options.
func NewPlanner() *Planner {
	return &Planner{
		options: PlannerOptions{
			IfNotExists: true,
			LiveIndexes: true,
		},
	}
}

// NewPlannerWithOptions creates a planner with custom options.
func NewPlannerWithOptions(opts PlannerOptions) *Planner {
	return &Planner{
		options: opts,
	}
}

// Plan renders every table of g. Referenced tables are created before the
// tables pointing at them.
func (p *Planner) Plan(g *registry.Graph) *Schema {
	s := &Schema{}
	order := g.Order()
	for _, name := range order {
		table, _ := g.Table(name)
		s.Up = append(s.Up, p.CreateTable(table))
	}
	for _, name := range slices.Backward(order) {
		s.Down = append(s.Down, p.generateDropTable(name))
	}
	return s
}

// CreateTable renders the CREATE TABLE statement of table, followed by its
// live-row index when enabled.
func (p *Planner) CreateTable(table *schema.TableMetadata) string {
	var parts []string

	var singlePKColumn string
	if table.PrimaryKey != nil && len(table.PrimaryKey.Columns) == 1 {
		singlePKColumn = table.PrimaryKey.Columns[0]
	}

	for _, col := range table.Columns {
		colDef := p.generateColumnDefinition(col)
		if col.Name == singlePKColumn {
			colDef += " PRIMARY KEY"
		}
		parts = append(parts, "    "+colDef)
	}

	// Composite primary keys are declared as a table constraint
	if table.PrimaryKey != nil && len(table.PrimaryKey.Columns) > 1 {
		pkCols := strings.Join(table.PrimaryKey.Columns, ", ")
		parts = append(parts, fmt.Sprintf("    CONSTRAINT %s PRIMARY KEY (%s)", table.PrimaryKey.Name, pkCols))
	}

	for _, fk := range table.ForeignKeys {
		parts = append(parts, "    "+p.generateForeignKeyDefinition(fk))
	}

	for _, constraint := range table.Constraints {
		switch constraint.Type {
		case schema.CheckConstraint:
			parts = append(parts, fmt.Sprintf("    CONSTRAINT %s CHECK %s", constraint.Name, constraint.Expression))
		case schema.UniqueConstraint:
			if len(constraint.Columns) > 1 {
				cols := strings.Join(constraint.Columns, ", ")
				parts = append(parts, fmt.Sprintf("    CONSTRAINT %s UNIQUE (%s)", constraint.Name, cols))
			}
		}
	}

	createClause := "CREATE TABLE"
	if p.options.IfNotExists {
		createClause = "CREATE TABLE IF NOT EXISTS"
	}
	sql := fmt.Sprintf("%s %s (\n%s\n);", createClause, table.Name, strings.Join(parts, ",\n"))

	if idx := p.generateLiveIndex(table); idx != "" {
		sql += "\n\n" + idx
	}
	return sql
}

// generateColumnDefinition generates a column definition.
func (p *Planner) generateColumnDefinition(col schema.ColumnMetadata) string {
	parts := []string{col.Name, col.SQLType}

	// GENERATED { ALWAYS | BY DEFAULT } AS IDENTITY implies NOT NULL
	if col.Identity != nil {
		parts = append(parts, fmt.Sprintf("GENERATED %s AS IDENTITY", col.Identity.Generation))
		return strings.Join(parts, " ")
	}

	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.Default != nil {
		parts = append(parts, "DEFAULT", *col.Default)
	}
	if col.Unique {
		parts = append(parts, "UNIQUE")
	}
	return strings.Join(parts, " ")
}

// generateForeignKeyDefinition generates a foreign key constraint.
func (p *Planner) generateForeignKeyDefinition(fk schema.ForeignKeyMetadata) string {
	localCols := strings.Join(fk.Columns, ", ")
	refCols := strings.Join(fk.ReferencedColumns, ", ")

	parts := []string{
		fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s)", fk.Name, localCols),
		fmt.Sprintf("REFERENCES %s (%s)", fk.ReferencedTable, refCols),
	}
	if fk.OnDelete != schema.NoAction && fk.OnDelete != "" {
		parts = append(parts, "ON DELETE "+string(fk.OnDelete))
	}
	if fk.OnUpdate != schema.NoAction && fk.OnUpdate != "" {
		parts = append(parts, "ON UPDATE "+string(fk.OnUpdate))
	}
	return strings.Join(parts, " ")
}

// generateLiveIndex renders the partial index backing the live view of a
// soft-deletable table.
func (p *Planner) generateLiveIndex(table *schema.TableMetadata) string {
	if !p.options.LiveIndexes || !table.IsSoftDeletable() || table.PrimaryKey == nil {
		return ""
	}
	parts := []string{"CREATE INDEX"}
	if p.options.IfNotExists {
		parts = append(parts, "IF NOT EXISTS")
	}
	parts = append(parts,
		table.Name+"_live_idx",
		"ON", table.Name,
		fmt.Sprintf("(%s)", strings.Join(table.PrimaryKey.Columns, ", ")),
		"WHERE", livePredicate(table.SoftDelete),
	)
	return strings.Join(parts, " ") + ";"
}

func livePredicate(sd *schema.SoftDeleteMetadata) string {
	switch v := sd.Unset.(type) {
	case nil:
		return sd.Column + " IS NULL"
	case string:
		return fmt.Sprintf("%s = '%s'", sd.Column, strings.ReplaceAll(v, "'", "''"))
	case time.Time:
		return fmt.Sprintf("%s = '%s'", sd.Column, v.UTC().Format(time.RFC3339Nano))
	default:
		return fmt.Sprintf("%s = %v", sd.Column, v)
	}
}

// generateDropTable generates a DROP TABLE statement.
func (p *Planner) generateDropTable(tableName string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", quoteIdent(tableName))
}
