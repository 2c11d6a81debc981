package db

import (
	"database/sql"
	"fmt"
)

// Run statuses.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// Run is one invocation of the convert command.
type Run struct {
	ID         string
	InputDir   string
	Format     string
	Combined   bool
	Status     string
	Total      int
	Converted  int
	Skipped    int
	Failed     int
	StartedAt  NullTime
	FinishedAt NullTime
}

// StartRun inserts r with status running and remembers it as the last run.
func (db *DB) StartRun(r *Run) error {
	r.Status = RunRunning
	_, err := db.Exec(`
		INSERT INTO runs (id, input_dir, format, combined, status, total)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.InputDir, r.Format, r.Combined, r.Status, r.Total)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return db.SetSetting(SettingLastRun, r.ID)
}

// FinishRun stores the final counters and status of r.
func (db *DB) FinishRun(r *Run) error {
	_, err := db.Exec(`
		UPDATE runs
		SET status = ?, total = ?, converted = ?, skipped = ?, failed = ?,
		    finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, r.Status, r.Total, r.Converted, r.Skipped, r.Failed, r.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id, or nil if absent
func (db *DB) GetRun(id string) (*Run, error) {
	r := &Run{}
	err := db.QueryRow(`
		SELECT id, input_dir, format, combined, status, total, converted, skipped, failed,
		       started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(
		&r.ID, &r.InputDir, &r.Format, &r.Combined, &r.Status, &r.Total, &r.Converted,
		&r.Skipped, &r.Failed, &r.StartedAt, &r.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// LastRun returns the most recently started run, or nil before the first one.
func (db *DB) LastRun() (*Run, error) {
	id, err := db.GetSetting(SettingLastRun)
	if err != nil || id == "" {
		return nil, err
	}
	return db.GetRun(id)
}
