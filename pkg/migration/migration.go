// Package migration renders and applies the DDL of registered models.
package migration

import (
	"strings"
	"time"
)

// Schema is the DDL of a set of models. Up creates the tables in dependency
// order, Down drops them in reverse.
type Schema struct {
	Up   []string `json:"up"`
	Down []string `json:"down"`
}

// UpSQL joins the up statements into one script.
func (s *Schema) UpSQL() string {
	return join(s.Up)
}

// DownSQL joins the down statements into one script.
func (s *Schema) DownSQL() string {
	return join(s.Down)
}

func join(statements []string) string {
	if len(statements) == 0 {
		return ""
	}
	return strings.Join(statements, "\n\n") + "\n"
}

// GenerateVersion generates a timestamp-based version string.
// Format: YYYYMMDDHHmmss (e.g., "20240101120000")
func GenerateVersion() string {
	return time.Now().Format("20060102150405")
}

// GenerateFileName generates a migration filename.
// Format: {version}_{name}.{up|down}.sql
func GenerateFileName(version, name, direction string) string {
	return version + "_" + name + "." + direction + ".sql"
}
