package models

import "time"

// FetchStatus classifies the result of a single fetch attempt.
type FetchStatus int

const (
	FetchSuccess FetchStatus = iota
	FetchRateLimited
	FetchServerError
	FetchClientError
	FetchNetworkError
	FetchTimeout
)

func (s FetchStatus) String() string {
	switch s {
	case FetchSuccess:
		return "success"
	case FetchRateLimited:
		return "rate_limited"
	case FetchServerError:
		return "server_error"
	case FetchClientError:
		return "client_error"
	case FetchNetworkError:
		return "network_error"
	case FetchTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Retryable reports whether the fetcher may try again after this status.
func (s FetchStatus) Retryable() bool {
	switch s {
	case FetchRateLimited, FetchServerError, FetchNetworkError, FetchTimeout:
		return true
	default:
		return false
	}
}

// FetchOutcome is what a fetch returns after its last attempt.
type FetchOutcome struct {
	Status         FetchStatus
	Body           []byte
	HTTPStatusCode int
	Attempt        int
	// RetryAfter is set only when a 429 response carried a numeric Retry-After.
	RetryAfter *time.Duration
	FinalURL   string
	Err        error
}

func (o FetchOutcome) OK() bool {
	return o.Status == FetchSuccess
}

// BlockVerdict is the result of checking a body for bot-wall markers.
type BlockVerdict struct {
	Blocked bool
	Reason  string
}
