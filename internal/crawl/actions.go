// Package crawl wires configuration, the fetch stack and the lead store into
// the crawl command.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dtnitsch/lead-crawler/internal/config"
	"github.com/dtnitsch/lead-crawler/models"
	"github.com/dtnitsch/lead-crawler/pkg/caching"
	"github.com/dtnitsch/lead-crawler/pkg/db"
	"github.com/dtnitsch/lead-crawler/pkg/detector"
	"github.com/dtnitsch/lead-crawler/pkg/discover"
	"github.com/dtnitsch/lead-crawler/pkg/extractor"
	"github.com/dtnitsch/lead-crawler/pkg/fetcher"
	"github.com/dtnitsch/lead-crawler/pkg/metrics"
	"github.com/dtnitsch/lead-crawler/pkg/orchestrator"
	"github.com/dtnitsch/lead-crawler/pkg/pacing"
	"github.com/urfave/cli/v2"
)

// Deps are the run-scoped handles Execute works with. Nil Store and Cache
// disable persistence and caching.
type Deps struct {
	Client  *http.Client
	Store   db.LeadStore
	Cache   caching.PageCache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Sleeper replaces real sleeps for backoff and politeness delays.
	Sleeper pacing.Sleeper
}

// OutputOptions control how the run is printed.
type OutputOptions struct {
	Format string
	Fields string
	Terse  bool
}

func CrawlAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	logger, logCloser := NewLogger(cfg, os.Stderr)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go m.Expose(ctx, cfg.MetricsAddr, logger)
	}

	client := NewHTTPClient()
	defer client.CloseIdleConnections()

	cache, err := OpenCache(cfg, logger)
	if err != nil {
		logger.Error("failed to open page cache", "error", err)
		return cli.Exit(err.Error(), 2)
	}
	if cache != nil {
		defer cache.Close()
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open lead store", "error", err)
		return cli.Exit(err.Error(), 2)
	}
	if store != nil {
		defer store.Close()
	}

	out, err := Execute(ctx, cfg, Deps{
		Client:  client,
		Store:   store,
		Cache:   cache,
		Metrics: m,
		Logger:  logger,
	}, OutputOptions{
		Format: c.String("format"),
		Fields: c.String("fields"),
		Terse:  c.Bool("terse"),
	}, os.Stdout)
	if err != nil {
		logger.Error("crawl failed", "error", err)
		return cli.Exit(err.Error(), 2)
	}

	if code := ExitCode(out.Status); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// applyFlags lets explicitly set CLI flags override the loaded config.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("seeds") {
		cfg.Seeds = strings.Split(c.String("seeds"), ",")
	}
	if c.IsSet("per-seed-limit") {
		cfg.PerSeedLimit = c.Int("per-seed-limit")
	}
	if c.IsSet("max-total") {
		cfg.MaxTotal = c.Int("max-total")
	}
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("rps") {
		cfg.RequestsPerSecond = c.Float64("rps")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-type") {
		cfg.LogType = c.String("log-type")
	}
	if c.IsSet("cache-dir") {
		if cfg.Cache == nil {
			cfg.Cache = &config.CacheConfig{}
		}
		cfg.Cache.Dir = c.String("cache-dir")
	}
	if c.IsSet("store") {
		if cfg.Store == nil {
			cfg.Store = &config.StoreConfig{}
		}
		cfg.Store.Driver = c.String("store")
	}
	if c.IsSet("dsn") {
		if cfg.Store == nil {
			cfg.Store = &config.StoreConfig{}
		}
		cfg.Store.DSN = c.String("dsn")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
}

// Execute runs one crawl with a validated config, persists the results when a
// store is given and writes the rendered output to w.
func Execute(ctx context.Context, cfg *config.Config, deps Deps, opts OutputOptions, w io.Writer) (FinalOutput, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := deps.Client
	if client == nil {
		client = NewHTTPClient()
	}
	sleeper := deps.Sleeper
	if sleeper == nil {
		sleeper = pacing.TimerSleeper{}
	}

	pattern, err := discover.NewDetailPattern(cfg.DetailPatterns)
	if err != nil {
		return FinalOutput{}, fmt.Errorf("invalid detail pattern: %w", err)
	}
	var selectors extractor.Selectors
	if cfg.Selectors != "" {
		if selectors, err = extractor.ParseSelectors(cfg.Selectors); err != nil {
			return FinalOutput{}, fmt.Errorf("invalid selectors: %w", err)
		}
	}

	jitter := pacing.NewJitter()
	f := fetcher.NewFetcher(client, logger, fetcher.Options{
		Timeout:    cfg.FetchTimeout(),
		MaxRetries: cfg.MaxRetries,
		Headers:    fetcher.NewHeaderRotator(jitter),
		Backoff:    fetcher.ExponentialJitter(cfg.BackoffBase(), jitter),
		Sleeper:    sleeper,
		Limiter:    NewLimiter(cfg.RequestsPerSecond),
		Observer:   deps.Metrics.ObserveAttempt,
	})
	disc := discover.New(discover.Options{Pattern: pattern, Logger: logger})
	ext := extractor.New(extractor.Options{Selectors: selectors, Logger: logger})

	minDelay, maxDelay := cfg.PolitenessDelay()
	orch := orchestrator.New(f, detector.New(), disc, ext, orchestrator.Options{
		PerSeedLimit: cfg.PerSeedLimit,
		MaxTotal:     cfg.MaxTotal,
		Concurrency:  cfg.Concurrency,
		Delay:        pacing.Delay{Min: minDelay, Max: maxDelay, Jitter: jitter, Sleeper: sleeper},
		KeepEmpty:    cfg.KeepEmptyRecords,
		Cache:        deps.Cache,
		Metrics:      deps.Metrics,
		Logger:       logger,
	})

	seeds := make([]models.Seed, len(cfg.Seeds))
	for i, u := range cfg.Seeds {
		seeds[i] = models.NewSeed(u, cfg.PerSeedLimit, "")
	}

	run, err := orch.Run(ctx, seeds)
	interrupted := false
	if err != nil {
		if run == nil || !errors.Is(err, ctx.Err()) {
			return FinalOutput{}, err
		}
		interrupted = true
		logger.Warn("crawl interrupted, writing partial results", "error", err)
	}

	var stored *db.UpsertResult
	if deps.Store != nil {
		stored, err = persist(context.WithoutCancel(ctx), deps.Store, cfg, run)
		if err != nil {
			logger.Error("failed to persist leads", "error", err)
		}
	}

	out := BuildOutput(run, RunStatus(run, interrupted), stored, opts.Fields, opts.Terse)
	data, err := Render(out, opts.Format)
	if err != nil {
		return out, err
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return out, fmt.Errorf("failed to write output: %w", err)
	}
	return out, nil
}

func persist(ctx context.Context, store db.LeadStore, cfg *config.Config, run *models.CrawlRun) (*db.UpsertResult, error) {
	keyName := ""
	if cfg.Store != nil {
		keyName = cfg.Store.NaturalKey
	}
	key, err := db.ParseNaturalKey(keyName)
	if err != nil {
		return nil, err
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	res, err := store.UpsertLeads(ctx, run.Records, key, run.ID)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
