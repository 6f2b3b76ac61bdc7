package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dtnitsch/lead-crawler/models"
)

// UpsertLeads writes records keyed by their natural key in one transaction.
// Existing leads keep any column the new record leaves empty. Records with
// no fields are skipped.
func (db *DB) UpsertLeads(ctx context.Context, records []models.ExtractionRecord, key NaturalKey, runID string) (UpsertResult, error) {
	var res UpsertResult

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		if rec.IsEmpty() {
			res.Skipped++
			continue
		}
		row, err := toRow(rec, key)
		if err != nil {
			return res, err
		}

		// Check if lead already exists
		var existingID int64
		var existingProv sql.NullString
		err = tx.QueryRowContext(ctx, "SELECT lead_id, provenance FROM leads WHERE natural_key = ?", row.key).Scan(&existingID, &existingProv)
		if err == nil {
			provenance, err := mergeProvenance(existingProv.String, row.provenance)
			if err != nil {
				return res, err
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE leads SET
					source_url = ?,
					source = COALESCE(NULLIF(?, ''), source),
					name = COALESCE(NULLIF(?, ''), name),
					email = COALESCE(NULLIF(?, ''), email),
					city = COALESCE(NULLIF(?, ''), city),
					brokerage = COALESCE(NULLIF(?, ''), brokerage),
					last_sale = COALESCE(NULLIF(?, ''), last_sale),
					price = COALESCE(NULLIF(?, ''), price),
					provenance = ?,
					last_run_id = ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE lead_id = ?
			`, row.sourceURL, row.source, row.name, row.email, row.city, row.brokerage,
				row.lastSale, row.price, provenance, runID, existingID)
			if err != nil {
				return res, fmt.Errorf("failed to update lead: %w", err)
			}
			res.Updated++
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return res, fmt.Errorf("failed to check existing lead: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO leads (natural_key, source_url, source, name, email, city, brokerage,
				last_sale, price, provenance, first_run_id, last_run_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, row.key, row.sourceURL, row.source, row.name, row.email, row.city, row.brokerage,
			row.lastSale, row.price, row.provenance, runID, runID)
		if err != nil {
			return res, fmt.Errorf("failed to insert lead: %w", err)
		}
		res.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to commit leads: %w", err)
	}
	return res, nil
}

// ListLeads returns stored leads, most recently updated first.
func (db *DB) ListLeads(ctx context.Context, opts ListOptions) ([]Lead, error) {
	query := `
		SELECT lead_id, natural_key, source_url, COALESCE(source, ''), COALESCE(name, ''),
			COALESCE(email, ''), COALESCE(city, ''), COALESCE(brokerage, ''),
			COALESCE(last_sale, ''), COALESCE(price, ''), COALESCE(provenance, ''),
			COALESCE(first_run_id, ''), COALESCE(last_run_id, ''), created_at, updated_at
		FROM leads
	`
	var conditions []string
	var args []interface{}
	if opts.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, opts.Source)
	}
	if opts.WithEmail {
		conditions = append(conditions, "email IS NOT NULL AND email != ''")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC, lead_id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
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

// CountLeads returns the number of stored leads.
func (db *DB) CountLeads(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM leads").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}
	return count, nil
}
