package repositories

import (
	"database/sql"
	"fmt"
)

// NextSequence bumps the counter row of table's "<table>_sequence" companion and returns the new
// value. History listings sort on it.
func NextSequence(db *sql.DB, table string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	counter := table + "_sequence"
	if _, err := tx.Exec("UPDATE " + counter + " SET value = value + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to bump %s: %w", counter, err)
	}

	var next int
	if err := tx.QueryRow("SELECT value FROM " + counter + " WHERE id = 1").Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", counter, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", counter, err)
	}
	return next, nil
}
