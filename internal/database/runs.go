package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Run ledger operations

// StartRun records a new run in the running state
func (db *DB) StartRun(id, mode, address string, maxPages int, startedAt time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO runs (id, mode, address, max_pages, started_at, status)
		VALUES (?, ?, ?, ?, ?, 'running')
	`, id, mode, address, maxPages, startedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordPage records one captured page of a run
func (db *DB) RecordPage(runID string, pageIndex int, signature string, newCount int, artifact string, capturedAt time.Time) error {
	var artifactValue *string
	if artifact != "" {
		artifactValue = &artifact
	}

	_, err := db.conn.Exec(`
		INSERT INTO pages (run_id, page_index, signature, new_count, artifact, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, pageIndex, signature, newCount, artifactValue, capturedAt)
	if err != nil {
		return fmt.Errorf("failed to insert page %d: %w", pageIndex, err)
	}
	return nil
}

// FinishRun stores the terminal status and totals of a run
func (db *DB) FinishRun(runID, status, stopReason string, pages, lines int, completedAt time.Time) error {
	return db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE runs
			SET completed_at = ?,
				status = ?,
				stop_reason = ?,
				pages = ?,
				lines = ?
			WHERE id = ?
		`, completedAt, status, stopReason, pages, lines, runID)
		if err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("run not found: %s", runID)
		}
		return nil
	})
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id string) (*Run, error) {
	run := &Run{}
	err := db.conn.QueryRow(`
		SELECT id, mode, address, max_pages, started_at, completed_at,
			status, stop_reason, pages, lines
		FROM runs
		WHERE id = ?
	`, id).Scan(
		&run.ID, &run.Mode, &run.Address, &run.MaxPages, &run.StartedAt, &run.CompletedAt,
		&run.Status, &run.StopReason, &run.Pages, &run.Lines,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns returns the most recent runs, newest first
func (db *DB) ListRuns(limit int) ([]*Run, error) {
	rows, err := db.conn.Query(`
		SELECT id, mode, address, max_pages, started_at, completed_at,
			status, stop_reason, pages, lines
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(
			&run.ID, &run.Mode, &run.Address, &run.MaxPages, &run.StartedAt, &run.CompletedAt,
			&run.Status, &run.StopReason, &run.Pages, &run.Lines,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// ListPages returns the pages of a run in index order
func (db *DB) ListPages(runID string) ([]*Page, error) {
	rows, err := db.conn.Query(`
		SELECT id, run_id, page_index, signature, new_count, artifact, captured_at
		FROM pages
		WHERE run_id = ?
		ORDER BY page_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	pages := make([]*Page, 0)
	for rows.Next() {
		page := &Page{}
		if err := rows.Scan(
			&page.ID, &page.RunID, &page.PageIndex, &page.Signature,
			&page.NewCount, &page.Artifact, &page.CapturedAt,
		); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	return pages, rows.Err()
}
