package database

import (
	"time"
)

// Run is one capture session
type Run struct {
	ID          string     `db:"id"`
	Mode        string     `db:"mode"`
	Address     string     `db:"address"`
	MaxPages    int        `db:"max_pages"`
	StartedAt   time.Time  `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
	Status      string     `db:"status"`
	StopReason  *string    `db:"stop_reason"`
	Pages       int        `db:"pages"`
	Lines       int        `db:"lines"`
}

// Page is one captured page of a run
type Page struct {
	ID         int64     `db:"id"`
	RunID      string    `db:"run_id"`
	PageIndex  int       `db:"page_index"`
	Signature  string    `db:"signature"`
	NewCount   int       `db:"new_count"`
	Artifact   *string   `db:"artifact"`
	CapturedAt time.Time `db:"captured_at"`
}
