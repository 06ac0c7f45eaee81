package schema

import (
	"fmt"
	"strings"
)

// Validate checks a parsed table for declarations the engine cannot honour.
func Validate(table *TableMetadata) error {
	if table.PrimaryKey != nil && len(table.PrimaryKey.Columns) > 1 && table.SoftDelete != nil {
		return fmt.Errorf("model %s: soft-deletable models need a single-column primary key", table.Name)
	}
	if sd := table.SoftDelete; sd != nil {
		col := table.GetColumnByName(sd.Column)
		if col == nil {
			return fmt.Errorf("model %s: softDelete column %q not found", table.Name, sd.Column)
		}
		if sd.Unset == nil && !col.Nullable {
			return fmt.Errorf("model %s: softDelete column %q must be nullable", table.Name, sd.Column)
		}
		if table.PrimaryKey != nil && table.PrimaryKey.Columns[0] == sd.Column {
			return fmt.Errorf("model %s: softDelete column cannot be the primary key", table.Name)
		}
	}
	for _, fk := range table.ForeignKeys {
		if fk.OnDelete != SetNull {
			continue
		}
		if col := table.GetColumnByName(fk.Columns[0]); col != nil && !col.Nullable {
			return fmt.Errorf("model %s: column %q uses onDelete:setnull but is not nullable", table.Name, col.Name)
		}
	}
	for _, col := range table.Columns {
		if col.Default == nil {
			continue
		}
		if err := ValidateDefaultValue(*col.Default); err != nil {
			return fmt.Errorf("model %s column %s: %w", table.Name, col.Name, err)
		}
	}
	return nil
}

var defaultTypos = map[string]string{
	"CURRENT TIMESTAMP": "CURRENT_TIMESTAMP",
	"CURRENT TIME":      "CURRENT_TIME",
	"CURRENT DATE":      "CURRENT_DATE",
	"NOW ()":            "NOW()",
	"GEN RANDOM UUID":   "gen_random_uuid()",
}

// ValidateDefaultValue rejects default expressions with common spelling mistakes.
func ValidateDefaultValue(defaultVal string) error {
	upper := strings.ToUpper(strings.TrimSpace(defaultVal))
	for typo, fix := range defaultTypos {
		if strings.Contains(upper, typo) {
			return fmt.Errorf("invalid DEFAULT value %q: use %s", defaultVal, fix)
		}
	}
	lower := strings.ToLower(upper)
	if !strings.ContainsAny(lower, "('") && (strings.Contains(lower, "random") || strings.Contains(lower, "uuid")) {
		return fmt.Errorf("invalid DEFAULT value %q: function call is missing parentheses", defaultVal)
	}
	return nil
}
