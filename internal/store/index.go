package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/antigravity-dev/backplane/internal/contract"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS receipts (
	run_id TEXT PRIMARY KEY,
	work_order_id TEXT NOT NULL,
	backend_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	outcome TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL,
	event_count INTEGER NOT NULL DEFAULT 0,
	receipt_sha256 TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_receipts_started_at ON receipts(started_at);
CREATE INDEX IF NOT EXISTS idx_receipts_outcome ON receipts(outcome);
`

// Summary is one indexed receipt row.
type Summary struct {
	RunID         uuid.UUID
	WorkOrderID   uuid.UUID
	BackendID     string
	Mode          string
	Outcome       contract.Outcome
	StartedAt     time.Time
	FinishedAt    time.Time
	DurationMS    int64
	EventCount    int
	ReceiptSHA256 string
}

// Index is a SQLite-backed receipt catalog. It duplicates the metadata of
// every saved receipt so list and chain queries avoid re-reading the JSON
// files. The files remain the source of truth.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if needed) the index database.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open index: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Record upserts one receipt's metadata. Same-id records overwrite, so an
// id stays a single row across re-saves.
func (ix *Index) Record(r contract.Receipt) error {
	_, err := ix.db.Exec(`
		INSERT INTO receipts (run_id, work_order_id, backend_id, mode, outcome,
			started_at, finished_at, duration_ms, event_count, receipt_sha256)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			work_order_id = excluded.work_order_id,
			backend_id = excluded.backend_id,
			mode = excluded.mode,
			outcome = excluded.outcome,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms,
			event_count = excluded.event_count,
			receipt_sha256 = excluded.receipt_sha256`,
		r.Meta.RunID.String(),
		r.Meta.WorkOrderID.String(),
		r.Backend.ID,
		string(r.Mode),
		string(r.Outcome),
		r.Meta.StartedAt.UTC(),
		r.Meta.FinishedAt.UTC(),
		r.Meta.DurationMS,
		len(r.Trace),
		r.ReceiptSHA256,
	)
	if err != nil {
		return fmt.Errorf("store: index receipt %s: %w", r.Meta.RunID, err)
	}
	return nil
}

// Summaries returns every indexed receipt ordered by started_at.
func (ix *Index) Summaries() ([]Summary, error) {
	rows, err := ix.db.Query(`
		SELECT run_id, work_order_id, backend_id, mode, outcome,
			started_at, finished_at, duration_ms, event_count, receipt_sha256
		FROM receipts ORDER BY started_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("store: query index: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var runID, workOrderID string
		if err := rows.Scan(&runID, &workOrderID, &s.BackendID, &s.Mode, &s.Outcome,
			&s.StartedAt, &s.FinishedAt, &s.DurationMS, &s.EventCount, &s.ReceiptSHA256); err != nil {
			return nil, fmt.Errorf("store: scan index row: %w", err)
		}
		if s.RunID, err = uuid.Parse(runID); err != nil {
			return nil, fmt.Errorf("store: index row run_id: %w", err)
		}
		if s.WorkOrderID, err = uuid.Parse(workOrderID); err != nil {
			return nil, fmt.Errorf("store: index row work_order_id: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByOutcome returns how many indexed runs ended with each outcome.
func (ix *Index) CountByOutcome() (map[contract.Outcome]int, error) {
	rows, err := ix.db.Query(`SELECT outcome, COUNT(*) FROM receipts GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("store: count outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[contract.Outcome]int)
	for rows.Next() {
		var outcome contract.Outcome
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("store: scan outcome count: %w", err)
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// Count returns the number of indexed receipts.
func (ix *Index) Count() (int, error) {
	var n int
	if err := ix.db.QueryRow(`SELECT COUNT(*) FROM receipts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count receipts: %w", err)
	}
	return n, nil
}
