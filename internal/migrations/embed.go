// Package migrations provides embedded SQL migration files.
package migrations

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed sql/001_initial.sql
var InitialSQL string

//go:embed sql/002_analysis_history.sql
var Migration002AnalysisHistory string

// All returns every migration in apply order.
func All() []string {
	return []string{InitialSQL, Migration002AnalysisHistory}
}

// Apply executes every migration against db. Statements are idempotent.
func Apply(db *sql.DB) error {
	for i, m := range All() {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %03d: %w", i+1, err)
		}
	}
	return nil
}
