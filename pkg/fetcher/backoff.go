package fetcher

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dtnitsch/lead-crawler/models"
	"github.com/dtnitsch/lead-crawler/pkg/pacing"
)

const (
	jitterMin = 500 * time.Millisecond
	jitterMax = 3 * time.Second
)

// BackoffPolicy returns how long to wait after the given failed attempt.
type BackoffPolicy func(attempt int, outcome models.FetchOutcome) time.Duration

// ExponentialJitter waits base*2^(attempt-1) plus 0.5-3s of jitter. A
// numeric Retry-After on a 429 replaces the computed delay.
func ExponentialJitter(base time.Duration, jitter *pacing.Jitter) BackoffPolicy {
	if jitter == nil {
		jitter = pacing.NewJitter()
	}
	return func(attempt int, outcome models.FetchOutcome) time.Duration {
		if outcome.Status == models.FetchRateLimited && outcome.RetryAfter != nil {
			return *outcome.RetryAfter
		}
		if attempt < 1 {
			attempt = 1
		}
		return base*time.Duration(1<<(attempt-1)) + jitter.Uniform(jitterMin, jitterMax)
	}
}

// parseRetryAfter accepts only the delay-seconds form of the header.
func parseRetryAfter(h http.Header) *time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return nil
	}
	d := time.Duration(secs * float64(time.Second))
	return &d
}

func classifyStatus(code int) models.FetchStatus {
	switch {
	case code >= 200 && code < 300:
		return models.FetchSuccess
	case code == http.StatusTooManyRequests:
		return models.FetchRateLimited
	case code >= 500:
		return models.FetchServerError
	default:
		return models.FetchClientError
	}
}
