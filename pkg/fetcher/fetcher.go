package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dtnitsch/lead-crawler/models"
	"github.com/dtnitsch/lead-crawler/pkg/pacing"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 5
	DefaultBackoffBase = 3 * time.Second
	// Pages bigger than this are truncated.
	DefaultMaxBodyBytes = 10 << 20
)

// AttemptObserver is called once per attempt with its classification.
type AttemptObserver func(status models.FetchStatus, httpStatus int)

type Options struct {
	Timeout      time.Duration
	MaxRetries   int
	MaxBodyBytes int64
	Headers      *HeaderRotator
	Backoff      BackoffPolicy
	Sleeper      pacing.Sleeper
	// Limiter, when set, is waited on before every attempt.
	Limiter  *rate.Limiter
	Observer AttemptObserver
}

type Fetcher struct {
	client *http.Client
	logger *slog.Logger
	opts   Options
}

// NewFetcher builds a Fetcher over client. Zero-valued options fall back to
// the package defaults.
func NewFetcher(client *http.Client, logger *slog.Logger, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Headers == nil {
		opts.Headers = NewHeaderRotator(nil)
	}
	if opts.Backoff == nil {
		opts.Backoff = ExponentialJitter(DefaultBackoffBase, nil)
	}
	if opts.Sleeper == nil {
		opts.Sleeper = pacing.TimerSleeper{}
	}
	return &Fetcher{client: client, logger: logger, opts: opts}
}

// CallOption overrides a fetcher option for a single call.
type CallOption func(*callConfig)

type callConfig struct {
	timeout    time.Duration
	maxRetries int
	header     http.Header
}

func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d }
}

func WithMaxRetries(n int) CallOption {
	return func(c *callConfig) { c.maxRetries = n }
}

// WithHeader adds headers on top of the rotated set for every attempt.
func WithHeader(h http.Header) CallOption {
	return func(c *callConfig) { c.header = h }
}

// Fetch retrieves rawURL, retrying transient failures with backoff. It never
// returns an error: the outcome carries the classification of the last
// attempt. The loop stops early when ctx is cancelled.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, callOpts ...CallOption) models.FetchOutcome {
	cfg := callConfig{timeout: f.opts.Timeout, maxRetries: f.opts.MaxRetries}
	for _, o := range callOpts {
		o(&cfg)
	}
	if cfg.maxRetries <= 0 {
		cfg.maxRetries = 1
	}

	var outcome models.FetchOutcome
	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		if f.opts.Limiter != nil {
			if err := f.opts.Limiter.Wait(ctx); err != nil {
				return cancelled(outcome, attempt-1, err)
			}
		}

		outcome = f.attempt(ctx, rawURL, cfg)
		outcome.Attempt = attempt
		if f.opts.Observer != nil {
			f.opts.Observer(outcome.Status, outcome.HTTPStatusCode)
		}

		if ctx.Err() != nil {
			return cancelled(outcome, attempt, ctx.Err())
		}
		if !outcome.Status.Retryable() {
			f.logger.Debug("fetch finished", "url", rawURL, "status", outcome.Status, "code", outcome.HTTPStatusCode, "attempt", attempt)
			return outcome
		}
		if attempt == cfg.maxRetries {
			break
		}

		wait := f.opts.Backoff(attempt, outcome)
		f.logger.Warn("fetch attempt failed, retrying",
			"url", rawURL,
			"status", outcome.Status,
			"code", outcome.HTTPStatusCode,
			"attempt", attempt,
			"wait", wait,
			"error", outcome.Err)
		if err := f.opts.Sleeper.Sleep(ctx, wait); err != nil {
			return cancelled(outcome, attempt, err)
		}
	}

	f.logger.Warn("fetch gave up", "url", rawURL, "status", outcome.Status, "attempts", outcome.Attempt)
	return outcome
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string, cfg callConfig) models.FetchOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.FetchOutcome{Status: models.FetchClientError, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header = f.opts.Headers.Next()
	for k, vs := range cfg.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return models.FetchOutcome{Status: transportStatus(err), Err: fmt.Errorf("failed to make HTTP request: %w", err)}
	}
	defer resp.Body.Close()

	outcome := models.FetchOutcome{
		Status:         classifyStatus(resp.StatusCode),
		HTTPStatusCode: resp.StatusCode,
		FinalURL:       rawURL,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		outcome.FinalURL = resp.Request.URL.String()
	}
	if outcome.Status == models.FetchRateLimited {
		outcome.RetryAfter = parseRetryAfter(resp.Header)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		if outcome.Status == models.FetchSuccess {
			outcome.Status = transportStatus(err)
		}
		outcome.Err = fmt.Errorf("failed to read response body: %w", err)
		return outcome
	}
	outcome.Body = body
	if outcome.Status != models.FetchSuccess {
		outcome.Err = fmt.Errorf("failed to fetch HTML, status code: %d", resp.StatusCode)
	}
	return outcome
}

func transportStatus(err error) models.FetchStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.FetchTimeout
	}
	return models.FetchNetworkError
}

func cancelled(last models.FetchOutcome, attempts int, err error) models.FetchOutcome {
	if last.Status == models.FetchSuccess && last.Body != nil {
		last.Attempt = attempts
		return last
	}
	last.Attempt = attempts
	last.Status = models.FetchNetworkError
	last.Err = fmt.Errorf("fetch cancelled: %w", err)
	return last
}
