package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dtnitsch/lead-crawler/models"
	"github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS crawl_runs (
    run_id TEXT PRIMARY KEY,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    discovered INTEGER DEFAULT 0,
    attempted INTEGER DEFAULT 0,
    succeeded INTEGER DEFAULT 0,
    blocked INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    dropped INTEGER DEFAULT 0,
    record_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS leads (
    lead_id BIGSERIAL PRIMARY KEY,
    natural_key TEXT NOT NULL UNIQUE,
    source_url TEXT NOT NULL,
    source TEXT,
    name TEXT,
    email TEXT,
    city TEXT,
    brokerage TEXT,
    last_sale TEXT,
    price TEXT,
    provenance JSONB,
    first_run_id TEXT,
    last_run_id TEXT,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(source);
CREATE INDEX IF NOT EXISTS idx_leads_updated ON leads(updated_at DESC);

CREATE TABLE IF NOT EXISTS run_candidates (
    id BIGSERIAL PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES crawl_runs(run_id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    discovered_via TEXT NOT NULL,
    UNIQUE(run_id, url)
);
`

// PostgresStore is the shared lead store.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with a lib/pq DSN and creates the schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if _, err := pq.ParseURL(dsn); err != nil && strings.HasPrefix(dsn, "postgres") {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, postgresSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresStore{db: sqlDB}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// UpsertLeads relies on ON CONFLICT; xmax is zero only for freshly inserted rows.
func (s *PostgresStore) UpsertLeads(ctx context.Context, records []models.ExtractionRecord, key NaturalKey, runID string) (UpsertResult, error) {
	var res UpsertResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO leads (natural_key, source_url, source, name, email, city, brokerage,
			last_sale, price, provenance, first_run_id, last_run_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
			NULLIF($8, ''), NULLIF($9, ''), $10::jsonb, $11, $11)
		ON CONFLICT (natural_key) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			source = COALESCE(NULLIF(EXCLUDED.source, ''), leads.source),
			name = COALESCE(EXCLUDED.name, leads.name),
			email = COALESCE(EXCLUDED.email, leads.email),
			city = COALESCE(EXCLUDED.city, leads.city),
			brokerage = COALESCE(EXCLUDED.brokerage, leads.brokerage),
			last_sale = COALESCE(EXCLUDED.last_sale, leads.last_sale),
			price = COALESCE(EXCLUDED.price, leads.price),
			provenance = COALESCE(leads.provenance, '{}'::jsonb) || EXCLUDED.provenance,
			last_run_id = EXCLUDED.last_run_id,
			updated_at = NOW()
		RETURNING (xmax = 0)
	`)
	if err != nil {
		return res, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.IsEmpty() {
			res.Skipped++
			continue
		}
		row, err := toRow(rec, key)
		if err != nil {
			return res, err
		}
		var inserted bool
		err = stmt.QueryRowContext(ctx, row.key, row.sourceURL, row.source, row.name, row.email,
			row.city, row.brokerage, row.lastSale, row.price, row.provenance, runID).Scan(&inserted)
		if err != nil {
			return res, fmt.Errorf("failed to upsert lead: %w", err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to commit leads: %w", err)
	}
	return res, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, opts ListOptions) ([]Lead, error) {
	query := `
		SELECT lead_id, natural_key, source_url, COALESCE(source, ''), COALESCE(name, ''),
			COALESCE(email, ''), COALESCE(city, ''), COALESCE(brokerage, ''),
			COALESCE(last_sale, ''), COALESCE(price, ''), COALESCE(provenance::text, ''),
			COALESCE(first_run_id, ''), COALESCE(last_run_id, ''), created_at, updated_at
		FROM leads
	`
	var conditions []string
	var args []interface{}
	if opts.Source != "" {
		args = append(args, opts.Source)
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)))
	}
	if opts.WithEmail {
		conditions = append(conditions, "email IS NOT NULL AND email <> ''")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC, lead_id DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		var l Lead
		var provenance string
		if err := rows.Scan(&l.ID, &l.NaturalKey, &l.SourceURL, &l.Source, &l.Name, &l.Email,
			&l.City, &l.Brokerage, &l.LastSale, &l.Price, &provenance,
			&l.FirstRunID, &l.LastRunID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		l.Provenance = decodeProvenance(provenance)
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *models.CrawlRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO crawl_runs (run_id, started_at, finished_at, discovered, attempted,
			succeeded, blocked, failed, dropped, record_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			discovered = EXCLUDED.discovered,
			attempted = EXCLUDED.attempted,
			succeeded = EXCLUDED.succeeded,
			blocked = EXCLUDED.blocked,
			failed = EXCLUDED.failed,
			dropped = EXCLUDED.dropped,
			record_count = EXCLUDED.record_count
	`, run.ID, run.StartedAt, run.FinishedAt, run.Stats.Discovered, run.Stats.Attempted,
		run.Stats.Succeeded, run.Stats.Blocked, run.Stats.Failed, run.Stats.Dropped, len(run.Records))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if len(run.Candidates) > 0 {
		urls := make([]string, len(run.Candidates))
		vias := make([]string, len(run.Candidates))
		for i, c := range run.Candidates {
			urls[i] = c.URL
			vias[i] = c.DiscoveredVia.String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_candidates (run_id, url, discovered_via)
			SELECT $1, u, v FROM unnest($2::text[], $3::text[]) AS t(u, v)
			ON CONFLICT (run_id, url) DO NOTHING
		`, run.ID, pq.Array(urls), pq.Array(vias))
		if err != nil {
			return fmt.Errorf("failed to save run candidates: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, COALESCE(finished_at, started_at), discovered, attempted,
			succeeded, blocked, failed, dropped, record_count
		FROM crawl_runs
		ORDER BY started_at DESC
		LIMIT $1
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

var (
	_ LeadStore = (*DB)(nil)
	_ LeadStore = (*PostgresStore)(nil)
)
