package db

import (
	"context"
	"fmt"

	"github.com/dtnitsch/lead-crawler/models"
)

// SaveRun stores the run counters and its discovered candidates.
func (db *DB) SaveRun(ctx context.Context, run *models.CrawlRun) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO crawl_runs (run_id, started_at, finished_at, discovered, attempted,
			succeeded, blocked, failed, dropped, record_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			discovered = excluded.discovered,
			attempted = excluded.attempted,
			succeeded = excluded.succeeded,
			blocked = excluded.blocked,
			failed = excluded.failed,
			dropped = excluded.dropped,
			record_count = excluded.record_count
	`, run.ID, run.StartedAt, run.FinishedAt, run.Stats.Discovered, run.Stats.Attempted,
		run.Stats.Succeeded, run.Stats.Blocked, run.Stats.Failed, run.Stats.Dropped, len(run.Records))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, c := range run.Candidates {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO run_candidates (run_id, url, discovered_via)
			VALUES (?, ?, ?)
		`, run.ID, c.URL, c.DiscoveredVia.String())
		if err != nil {
			return fmt.Errorf("failed to save run candidate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// ListRuns returns recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, discovered, attempted, succeeded,
			blocked, failed, dropped, record_count
		FROM crawl_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Stats.Discovered,
			&r.Stats.Attempted, &r.Stats.Succeeded, &r.Stats.Blocked, &r.Stats.Failed,
			&r.Stats.Dropped, &r.RecordCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunCandidates returns the URLs discovered in a run, in insertion order.
func (db *DB) RunCandidates(ctx context.Context, runID string) ([]models.CandidateURL, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT url, discovered_via FROM run_candidates WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run candidates: %w", err)
	}
	defer rows.Close()

	var out []models.CandidateURL
	for rows.Next() {
		var c models.CandidateURL
		var via string
		if err := rows.Scan(&c.URL, &via); err != nil {
			return nil, fmt.Errorf("failed to scan run candidate: %w", err)
		}
		if err := c.DiscoveredVia.UnmarshalText([]byte(via)); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
