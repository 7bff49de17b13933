// Package rundb keeps a small sqlite index of batch runs and their
// per-position outcomes, so repeated processing of a project stays
// auditable without trawling console logs.
package rundb

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the run-index database.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the run index at path and applies any
// pending schema migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrateUp() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db.DB, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	// Note: not closing m, which would close the underlying DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// BeginRun records the start of a batch run and returns its id. params is
// stored as JSON for later inspection.
func (db *DB) BeginRun(mode, project, outputDir string, params any) (string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encoding run params: %w", err)
	}

	id := uuid.NewString()
	_, err = db.Exec(
		`INSERT INTO runs (run_id, mode, project, output_dir, params) VALUES (?, ?, ?, ?, ?)`,
		id, mode, project, outputDir, string(paramsJSON),
	)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

// RecordOutcome stores one position's outcome. errText is empty on success.
func (db *DB) RecordOutcome(runID, position, scanName, errText string) error {
	success := 0
	if errText == "" {
		success = 1
	}
	_, err := db.Exec(
		`INSERT INTO outcomes (run_id, position, scan_name, success, error) VALUES (?, ?, ?, ?, ?)`,
		runID, position, scanName, success, errText,
	)
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", position, err)
	}
	return nil
}

// FinishRun stores the final tally and stamps the run as finished.
func (db *DB) FinishRun(runID string, attempted, succeeded, failed int) error {
	_, err := db.Exec(
		`UPDATE runs SET attempted = ?, succeeded = ?, failed = ?, finished_at = CURRENT_TIMESTAMP WHERE run_id = ?`,
		attempted, succeeded, failed, runID,
	)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// RunTally reads back a run's stored tally.
func (db *DB) RunTally(runID string) (attempted, succeeded, failed int, err error) {
	row := db.QueryRow(
		`SELECT attempted, succeeded, failed FROM runs WHERE run_id = ?`, runID)
	var a, s, f sql.NullInt64
	if err := row.Scan(&a, &s, &f); err != nil {
		return 0, 0, 0, err
	}
	return int(a.Int64), int(s.Int64), int(f.Int64), nil
}

// OutcomeCount returns how many outcomes a run recorded.
func (db *DB) OutcomeCount(runID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM outcomes WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}
