// Package orchestrator runs a crawl: seeds are fetched and mined for detail
// URLs, then a bounded worker pool extracts records until the cap is reached.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dtnitsch/lead-crawler/models"
	"github.com/dtnitsch/lead-crawler/pkg/caching"
	"github.com/dtnitsch/lead-crawler/pkg/extractor"
	"github.com/dtnitsch/lead-crawler/pkg/fetcher"
	"github.com/dtnitsch/lead-crawler/pkg/metrics"
	"github.com/dtnitsch/lead-crawler/pkg/pacing"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidConfig is the only error that aborts a run before it starts.
var ErrInvalidConfig = errors.New("invalid crawl configuration")

const (
	DefaultPerSeedLimit = 6
	DefaultMaxTotal     = 12
	DefaultConcurrency  = 3

	// profileRetries bounds the best-effort agent profile fetch.
	profileRetries = 2
)

type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts ...fetcher.CallOption) models.FetchOutcome
}

type BlockClassifier interface {
	Classify(body string) models.BlockVerdict
}

type LinkDiscoverer interface {
	Discover(seedURL string, body []byte, limit int) ([]models.CandidateURL, error)
}

type RecordExtractor interface {
	Extract(ctx context.Context, pageURL, source string, body []byte, secondary extractor.SecondaryFetch) models.ExtractionRecord
}

type Options struct {
	PerSeedLimit int
	MaxTotal     int
	Concurrency  int
	// Delay is the politeness pause between seeds and after each task.
	Delay pacing.Delay
	// KeepEmpty keeps records with no extracted fields.
	KeepEmpty bool
	Cache     caching.PageCache
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Validate reports the first option that makes a run impossible.
func (o Options) Validate() error {
	switch {
	case o.MaxTotal <= 0:
		return fmt.Errorf("%w: max_total must be positive, got %d", ErrInvalidConfig, o.MaxTotal)
	case o.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidConfig, o.Concurrency)
	case o.PerSeedLimit < 0:
		return fmt.Errorf("%w: per_seed_limit must not be negative, got %d", ErrInvalidConfig, o.PerSeedLimit)
	case o.Delay.Min < 0 || o.Delay.Max < o.Delay.Min:
		return fmt.Errorf("%w: politeness delay range [%s, %s] is invalid", ErrInvalidConfig, o.Delay.Min, o.Delay.Max)
	}
	return nil
}

type Orchestrator struct {
	fetcher   PageFetcher
	detector  BlockClassifier
	discover  LinkDiscoverer
	extractor RecordExtractor
	opts      Options
	logger    *slog.Logger
}

func New(f PageFetcher, d BlockClassifier, disc LinkDiscoverer, ext RecordExtractor, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		fetcher:   f,
		detector:  d,
		discover:  disc,
		extractor: ext,
		opts:      opts,
		logger:    opts.Logger,
	}
}

// task is one queued detail URL with the source label of the seed it came from.
type task struct {
	candidate models.CandidateURL
	source    string
}

// Run crawls seeds and returns the finished run. Per-page failures only
// show up in the run's counters. If ctx is cancelled the partial run is
// returned together with the context error.
func (o *Orchestrator) Run(ctx context.Context, seeds []models.Seed) (*models.CrawlRun, error) {
	if err := o.opts.Validate(); err != nil {
		return nil, err
	}

	run := models.NewCrawlRun()
	logger := o.logger.With("run_id", run.ID)
	logger.Info("Starting crawl", "seeds", len(seeds), "max_total", o.opts.MaxTotal, "workers", o.opts.Concurrency)

	tasks := o.discoverSeeds(ctx, logger, run, seeds)
	logger.Info("Discovery finished", "candidates", len(tasks))

	o.extract(ctx, logger, run, tasks)

	run.Finish()
	o.opts.Metrics.ObserveRun(run.Duration())
	logger.Info("Crawl finished",
		"records", len(run.Records),
		"attempted", run.Stats.Attempted,
		"succeeded", run.Stats.Succeeded,
		"blocked", run.Stats.Blocked,
		"failed", run.Stats.Failed,
		"dropped", run.Stats.Dropped,
		"duration", run.Duration())

	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("crawl interrupted: %w", err)
	}
	return run, nil
}

// discoverSeeds visits seeds in order until MaxTotal distinct URLs are queued.
func (o *Orchestrator) discoverSeeds(ctx context.Context, logger *slog.Logger, run *models.CrawlRun, seeds []models.Seed) []task {
	var tasks []task
	for i, seed := range seeds {
		if len(tasks) >= o.opts.MaxTotal || ctx.Err() != nil {
			break
		}
		if i > 0 {
			if err := o.opts.Delay.Wait(ctx); err != nil {
				break
			}
		}

		outcome := o.fetcher.Fetch(ctx, seed.URL)
		if !outcome.OK() {
			logger.Warn("Seed fetch failed", "seed", seed.URL, "status", outcome.Status, "code", outcome.HTTPStatusCode, "error", outcome.Err)
			continue
		}
		if verdict := o.detector.Classify(string(outcome.Body)); verdict.Blocked {
			logger.Warn("Seed page blocked", "seed", seed.URL, "reason", verdict.Reason)
			continue
		}

		limit := seed.PerSeedLimit
		if limit <= 0 {
			limit = o.opts.PerSeedLimit
		}
		candidates, err := o.discover.Discover(seed.URL, outcome.Body, limit)
		if err != nil {
			logger.Warn("Discovery failed", "seed", seed.URL, "error", err)
			continue
		}

		source := seed.Source
		if source == "" {
			source = models.SourceFromURL(seed.URL)
		}
		added := 0
		for _, c := range candidates {
			if !run.AddCandidate(c) {
				continue
			}
			o.opts.Metrics.ObserveCandidate(c)
			tasks = append(tasks, task{candidate: c, source: source})
			added++
		}
		logger.Info("Seed discovered", "seed", seed.URL, "found", len(candidates), "new", added)
	}
	return tasks
}

// settled carries a task result to the aggregator. The worker waits on ack
// so its next dispatch decision sees the count that includes this result.
type settled struct {
	res models.TaskResult
	ack chan struct{}
}

// extract runs the worker pool. Workers only read the accepted count; the
// aggregator goroutine is the single writer of run state. A worker takes a
// new task only after its previous result has been applied.
func (o *Orchestrator) extract(ctx context.Context, logger *slog.Logger, run *models.CrawlRun, tasks []task) {
	if len(tasks) == 0 {
		return
	}

	queue := make(chan task, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	results := make(chan settled, o.opts.Concurrency)
	var accepted atomic.Int64
	limit := int64(o.opts.MaxTotal)

	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		for s := range results {
			o.apply(logger, run, s.res, &accepted)
			s.ack <- struct{}{}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= o.opts.Concurrency; w++ {
		g.Go(func() error {
			ack := make(chan struct{}, 1)
			for t := range queue {
				if accepted.Load() >= limit || gctx.Err() != nil {
					return nil
				}
				results <- settled{res: o.process(gctx, logger.With("worker_id", w), t), ack: ack}
				<-ack
				if accepted.Load() >= limit {
					return nil
				}
				if err := o.opts.Delay.Wait(gctx); err != nil {
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-aggregated
}

func (o *Orchestrator) apply(logger *slog.Logger, run *models.CrawlRun, res models.TaskResult, accepted *atomic.Int64) {
	run.Stats.Attempted++
	o.opts.Metrics.ObserveTask(res.State)

	switch res.State {
	case models.TaskBlocked:
		run.Stats.Blocked++
		logger.Warn("Detail page blocked", "url", res.Candidate.URL, "reason", res.Reason)
		return
	case models.TaskFailed:
		run.Stats.Failed++
		logger.Warn("Detail page failed", "url", res.Candidate.URL, "reason", res.Reason)
		return
	}

	run.Stats.Succeeded++
	if accepted.Load() >= int64(o.opts.MaxTotal) {
		run.Stats.Dropped++
		logger.Debug("Record dropped after cap", "url", res.Candidate.URL)
		return
	}
	if res.Record == nil || (res.Record.IsEmpty() && !o.opts.KeepEmpty) {
		logger.Debug("Skipping empty record", "url", res.Candidate.URL)
		return
	}
	run.Records = append(run.Records, *res.Record)
	accepted.Add(1)
	o.opts.Metrics.ObserveRecord(*res.Record)
	logger.Info("Record accepted", "url", res.Candidate.URL, "fields", res.Record.Len(), "from_cache", res.FromCache)
}

// process takes one task from pending to a terminal state.
func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, t task) models.TaskResult {
	res := models.TaskResult{Candidate: t.candidate, State: models.TaskPending}
	advance(&res, models.TaskFetching)
	url := t.candidate.URL

	var body []byte
	if o.opts.Cache != nil {
		if cached, ok := o.opts.Cache.Get(url); ok {
			body = cached
			res.FromCache = true
			res.Outcome = models.FetchOutcome{Status: models.FetchSuccess, Body: cached, FinalURL: url}
			logger.Debug("Using cached page", "url", url)
		}
	}
	if !res.FromCache {
		res.Outcome = o.fetcher.Fetch(ctx, url)
		if !res.Outcome.OK() {
			res.Reason = res.Outcome.Status.String()
			advance(&res, models.TaskFailed)
			return res
		}
		body = res.Outcome.Body
	}

	if verdict := o.detector.Classify(string(body)); verdict.Blocked {
		res.Reason = verdict.Reason
		advance(&res, models.TaskBlocked)
		return res
	}

	if o.opts.Cache != nil && !res.FromCache {
		if err := o.opts.Cache.Set(url, body); err != nil {
			logger.Warn("Failed to cache page", "url", url, "error", err)
		}
	}

	rec := o.extractor.Extract(ctx, url, t.source, body, o.secondaryFetch)
	res.Record = &rec
	advance(&res, models.TaskExtracted)
	return res
}

// secondaryFetch is handed to the extractor for the agent profile lookup.
// Blocked profile pages count as failures.
func (o *Orchestrator) secondaryFetch(ctx context.Context, url string) ([]byte, error) {
	out := o.fetcher.Fetch(ctx, url, fetcher.WithMaxRetries(profileRetries))
	if !out.OK() {
		if out.Err != nil {
			return nil, out.Err
		}
		return nil, fmt.Errorf("profile fetch %s: %s", url, out.Status)
	}
	if verdict := o.detector.Classify(string(out.Body)); verdict.Blocked {
		return nil, fmt.Errorf("profile page blocked: %s", verdict.Reason)
	}
	return out.Body, nil
}

func advance(res *models.TaskResult, next models.TaskState) {
	if !res.State.CanTransition(next) {
		panic(fmt.Sprintf("invalid task transition %s -> %s", res.State, next))
	}
	res.State = next
}
