package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStats counts task outcomes for one crawl run.
type RunStats struct {
	Discovered int `json:"discovered" yaml:"discovered"`
	Attempted  int `json:"attempted" yaml:"attempted"`
	Succeeded  int `json:"succeeded" yaml:"succeeded"`
	Blocked    int `json:"blocked" yaml:"blocked"`
	Failed     int `json:"failed" yaml:"failed"`
	// Dropped counts extractions that finished after the record cap was hit.
	Dropped int `json:"dropped" yaml:"dropped"`
}

// CrawlRun is the state of a single crawl. Only the orchestrator's
// aggregating goroutine mutates it.
type CrawlRun struct {
	ID         string             `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time          `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time          `json:"finished_at" yaml:"finished_at"`
	Candidates []CandidateURL     `json:"candidates" yaml:"candidates"`
	Records    []ExtractionRecord `json:"records" yaml:"records"`
	Stats      RunStats           `json:"stats" yaml:"stats"`

	seen map[string]struct{}
}

func NewCrawlRun() *CrawlRun {
	return &CrawlRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		seen:      make(map[string]struct{}),
	}
}

// AddCandidate queues c unless its URL was already seen this run.
func (r *CrawlRun) AddCandidate(c CandidateURL) bool {
	if _, ok := r.seen[c.URL]; ok {
		return false
	}
	r.seen[c.URL] = struct{}{}
	r.Candidates = append(r.Candidates, c)
	r.Stats.Discovered++
	return true
}

func (r *CrawlRun) Seen(url string) bool {
	_, ok := r.seen[url]
	return ok
}

func (r *CrawlRun) Finish() {
	r.FinishedAt = time.Now()
}

func (r *CrawlRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
