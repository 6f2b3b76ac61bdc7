// Package db persists extracted leads and crawl run history. SQLite is the
// default store; Postgres is available for shared deployments.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dtnitsch/lead-crawler/internal/common"
	"github.com/dtnitsch/lead-crawler/models"
)

// NaturalKey selects the column leads are deduplicated on.
type NaturalKey string

const (
	KeyEmail     NaturalKey = "email"
	KeySourceURL NaturalKey = "source_url"
)

func ParseNaturalKey(s string) (NaturalKey, error) {
	switch NaturalKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeyEmail:
		return KeyEmail, nil
	case KeySourceURL, "url":
		return KeySourceURL, nil
	}
	return "", fmt.Errorf("unknown natural key: %s", s)
}

// LeadStore is implemented by the SQLite and Postgres stores.
type LeadStore interface {
	UpsertLeads(ctx context.Context, records []models.ExtractionRecord, key NaturalKey, runID string) (UpsertResult, error)
	ListLeads(ctx context.Context, opts ListOptions) ([]Lead, error)
	SaveRun(ctx context.Context, run *models.CrawlRun) error
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	Close() error
}

type UpsertResult struct {
	Inserted int `json:"inserted" yaml:"inserted"`
	Updated  int `json:"updated" yaml:"updated"`
	Skipped  int `json:"skipped" yaml:"skipped"`
}

type ListOptions struct {
	Limit  int
	Source string
	// WithEmail keeps only leads that have an email.
	WithEmail bool
}

// Lead is a stored record.
type Lead struct {
	ID         int64             `json:"id" yaml:"id"`
	NaturalKey string            `json:"natural_key" yaml:"natural_key"`
	SourceURL  string            `json:"source_url" yaml:"source_url"`
	Source     string            `json:"source" yaml:"source"`
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Email      string            `json:"email,omitempty" yaml:"email,omitempty"`
	City       string            `json:"city,omitempty" yaml:"city,omitempty"`
	Brokerage  string            `json:"brokerage,omitempty" yaml:"brokerage,omitempty"`
	LastSale   string            `json:"last_sale,omitempty" yaml:"last_sale,omitempty"`
	Price      string            `json:"price,omitempty" yaml:"price,omitempty"`
	Provenance map[string]string `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	FirstRunID string            `json:"first_run_id,omitempty" yaml:"first_run_id,omitempty"`
	LastRunID  string            `json:"last_run_id,omitempty" yaml:"last_run_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" yaml:"updated_at"`
}

// RunSummary is a stored crawl run.
type RunSummary struct {
	RunID       string          `json:"run_id" yaml:"run_id"`
	StartedAt   time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time       `json:"finished_at" yaml:"finished_at"`
	Stats       models.RunStats `json:"stats" yaml:"stats"`
	RecordCount int             `json:"record_count" yaml:"record_count"`
}

// leadRow is the column view of a record ready to write.
type leadRow struct {
	key        string
	sourceURL  string
	source     string
	name       string
	email      string
	city       string
	brokerage  string
	lastSale   string
	price      string
	provenance string
}

// naturalKeyFor falls back to the canonical source URL when the record has
// no email, so anonymous listings still dedup across runs.
func naturalKeyFor(rec models.ExtractionRecord, key NaturalKey) string {
	if key == KeyEmail {
		if email := strings.ToLower(rec.Value(models.FieldEmail)); email != "" {
			return "email:" + email
		}
	}
	u := rec.SourceURL
	if canonical, err := common.Canonicalize(u); err == nil {
		u = canonical
	}
	return "url:" + u
}

func toRow(rec models.ExtractionRecord, key NaturalKey) (leadRow, error) {
	prov := make(map[string]string)
	for f, via := range rec.ProvenanceMap() {
		prov[string(f)] = via.String()
	}
	provJSON, err := json.Marshal(prov)
	if err != nil {
		return leadRow{}, fmt.Errorf("failed to encode provenance: %w", err)
	}
	return leadRow{
		key:        naturalKeyFor(rec, key),
		sourceURL:  rec.SourceURL,
		source:     rec.Source,
		name:       rec.Value(models.FieldName),
		email:      rec.Value(models.FieldEmail),
		city:       rec.Value(models.FieldCity),
		brokerage:  rec.Value(models.FieldBrokerage),
		lastSale:   rec.Value(models.FieldLastSale),
		price:      rec.Value(models.FieldPrice),
		provenance: string(provJSON),
	}, nil
}

func decodeProvenance(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// mergeProvenance overlays the new provenance on the stored one, matching the
// column merge that keeps stored values the new record leaves empty.
func mergeProvenance(stored, fresh string) (string, error) {
	merged := decodeProvenance(stored)
	if merged == nil {
		merged = make(map[string]string)
	}
	for f, via := range decodeProvenance(fresh) {
		merged[f] = via
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("failed to encode provenance: %w", err)
	}
	return string(out), nil
}
