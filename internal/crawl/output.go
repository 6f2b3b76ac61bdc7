package crawl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dtnitsch/lead-crawler/internal/common"
	"github.com/dtnitsch/lead-crawler/models"
	"github.com/dtnitsch/lead-crawler/pkg/db"
	"gopkg.in/yaml.v3"
)

const (
	StatusSuccess        = "success"
	StatusPartialFailure = "partial_failure"
	StatusFailed         = "failed"
	StatusInterrupted    = "interrupted"
)

// FinalOutput is the structured output for the entire run.
type FinalOutput struct {
	RunID           string           `json:"run_id" yaml:"run_id"`
	Status          string           `json:"status" yaml:"status"`
	Records         interface{}      `json:"records" yaml:"records"`
	Stats           models.RunStats  `json:"stats" yaml:"stats"`
	Store           *db.UpsertResult `json:"store,omitempty" yaml:"store,omitempty"`
	DurationSeconds float64          `json:"duration_seconds" yaml:"duration_seconds"`
}

// RunStatus summarizes a finished run.
func RunStatus(run *models.CrawlRun, interrupted bool) string {
	switch {
	case interrupted:
		return StatusInterrupted
	case len(run.Records) == 0:
		return StatusFailed
	case run.Stats.Failed > 0 || run.Stats.Blocked > 0:
		return StatusPartialFailure
	}
	return StatusSuccess
}

// ExitCode follows the status: 0 for success, 1 when some pages were lost,
// 2 when nothing was extracted.
func ExitCode(status string) int {
	switch status {
	case StatusSuccess:
		return 0
	case StatusPartialFailure, StatusInterrupted:
		return 1
	}
	return 2
}

// BuildOutput assembles the output. With fields set, each record is flattened
// to its columns and filtered like the leads listing.
func BuildOutput(run *models.CrawlRun, status string, store *db.UpsertResult, fields string, terse bool) FinalOutput {
	out := FinalOutput{
		RunID:           run.ID,
		Status:          status,
		Records:         run.Records,
		Stats:           run.Stats,
		Store:           store,
		DurationSeconds: run.Duration().Seconds(),
	}
	if run.Records == nil {
		out.Records = []models.ExtractionRecord{}
	}
	if fields == "" && !terse {
		return out
	}

	rows := make([]map[string]interface{}, len(run.Records))
	for i, rec := range run.Records {
		rows[i] = common.FilterResultFields(flatten(rec), fields, terse)
	}
	out.Records = rows
	return out
}

func flatten(rec models.ExtractionRecord) map[string]string {
	row := map[string]string{
		"source_url": rec.SourceURL,
		"source":     rec.Source,
	}
	for f, v := range rec.Fields() {
		row[columnName(f)] = v
	}
	return row
}

// columnName maps a field to its snake_case column.
func columnName(f models.Field) string {
	if f == models.FieldLastSale {
		return "last_sale"
	}
	return string(f)
}

// Render marshals v as json (indented) or yaml.
func Render(v interface{}, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Marshal(v)
	case "json", "":
		return json.MarshalIndent(v, "", "  ")
	}
	return nil, fmt.Errorf("unknown output format: %s", format)
}
