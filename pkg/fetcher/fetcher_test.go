package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtnitsch/lead-crawler/models"
	"github.com/dtnitsch/lead-crawler/pkg/pacing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(rec pacing.Sleeper, opts Options) *Fetcher {
	opts.Sleeper = rec
	if opts.Backoff == nil {
		opts.Backoff = ExponentialJitter(time.Second, pacing.NewSeededJitter(7))
	}
	return NewFetcher(&http.Client{}, quietLogger(), opts)
}

// sequenceServer replies with the given status codes in order, repeating the
// last one once the list is exhausted.
func sequenceServer(t *testing.T, codes []int, headers map[int]http.Header) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1)) - 1
		if n >= len(codes) {
			n = len(codes) - 1
		}
		for k, vs := range headers[n] {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(codes[n])
		_, _ = io.WriteString(w, "<html><body>ok</body></html>")
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchSuccessFirstAttempt(t *testing.T) {
	srv, hits := sequenceServer(t, []int{http.StatusOK}, nil)
	rec := &pacing.Recorder{}
	f := newTestFetcher(rec, Options{})

	out := f.Fetch(context.Background(), srv.URL+"/d/1")

	assert.Equal(t, models.FetchSuccess, out.Status)
	assert.Equal(t, 1, out.Attempt)
	assert.Equal(t, http.StatusOK, out.HTTPStatusCode)
	assert.Contains(t, string(out.Body), "ok")
	assert.Equal(t, srv.URL+"/d/1", out.FinalURL)
	assert.NoError(t, out.Err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, rec.Sleeps())
}

func TestFetchHonorsRetryAfterExactly(t *testing.T) {
	srv, hits := sequenceServer(t,
		[]int{http.StatusTooManyRequests, http.StatusOK},
		map[int]http.Header{0: {"Retry-After": []string{"2"}}})
	rec := &pacing.Recorder{}
	f := newTestFetcher(rec, Options{})

	out := f.Fetch(context.Background(), srv.URL)

	require.Equal(t, models.FetchSuccess, out.Status)
	assert.Equal(t, 2, out.Attempt)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.Sleeps())
}

func TestFetchNonNumericRetryAfterUsesBackoff(t *testing.T) {
	srv, _ := sequenceServer(t,
		[]int{http.StatusTooManyRequests, http.StatusOK},
		map[int]http.Header{0: {"Retry-After": []string{"Wed, 21 Oct 2015 07:28:00 GMT"}}})
	rec := &pacing.Recorder{}
	f := newTestFetcher(rec, Options{})

	out := f.Fetch(context.Background(), srv.URL)

	require.Equal(t, models.FetchSuccess, out.Status)
	sleeps := rec.Sleeps()
	require.Len(t, sleeps, 1)
	assert.GreaterOrEqual(t, sleeps[0], time.Second+jitterMin)
	assert.LessOrEqual(t, sleeps[0], time.Second+jitterMax)
}

func TestFetchRetryCeiling(t *testing.T) {
	srv, hits := sequenceServer(t, []int{http.StatusServiceUnavailable}, nil)
	rec := &pacing.Recorder{}
	f := newTestFetcher(rec, Options{MaxRetries: 3})

	out := f.Fetch(context.Background(), srv.URL)

	assert.Equal(t, models.FetchServerError, out.Status)
	assert.Equal(t, 3, out.Attempt)
	assert.Equal(t, int32(3), hits.Load())
	assert.Len(t, rec.Sleeps(), 2, "no sleep after the final attempt")
	assert.Error(t, out.Err)
}

func TestFetchBackoffGrowsGeometrically(t *testing.T) {
	srv, _ := sequenceServer(t, []int{http.StatusInternalServerError}, nil)
	rec := &pacing.Recorder{}
	f := newTestFetcher(rec, Options{MaxRetries: 4})

	f.Fetch(context.Background(), srv.URL)

	sleeps := rec.Sleeps()
	require.Len(t, sleeps, 3)
	for i, s := range sleeps {
		floor := time.Duration(1<<i) * time.Second
		assert.GreaterOrEqual(t, s, floor+jitterMin, "attempt %d", i+1)
		assert.LessOrEqual(t, s, floor+jitterMax, "attempt %d", i+1)
	}
}

func TestFetchClientErrorIsNotRetried(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusGone} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			srv, hits := sequenceServer(t, []int{code}, nil)
			rec := &pacing.Recorder{}
			f := newTestFetcher(rec, Options{})

			out := f.Fetch(context.Background(), srv.URL)

			assert.Equal(t, models.FetchClientError, out.Status)
			assert.Equal(t, code, out.HTTPStatusCode)
			assert.Equal(t, 1, out.Attempt)
			assert.Equal(t, int32(1), hits.Load())
			assert.Empty(t, rec.Sleeps())
		})
	}
}

func TestFetchTimeoutIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	rec := &pacing.Recorder{}
	f := newTestFetcher(rec, Options{MaxRetries: 2, Timeout: 50 * time.Millisecond})

	out := f.Fetch(context.Background(), srv.URL)

	assert.Equal(t, models.FetchTimeout, out.Status)
	assert.Equal(t, 2, out.Attempt)
	assert.Len(t, rec.Sleeps(), 1)
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &pacing.Recorder{}
	f := newTestFetcher(rec, Options{MaxRetries: 2})

	out := f.Fetch(context.Background(), url)

	assert.Equal(t, models.FetchNetworkError, out.Status)
	assert.Equal(t, 2, out.Attempt)
	assert.Nil(t, out.Body)
}

func TestFetchRotatesHeaders(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.UserAgent())
		mu.Unlock()
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		assert.Equal(t, defaultReferer, r.Header.Get("Referer"))
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	rec := &pacing.Recorder{}
	f := newTestFetcher(rec, Options{MaxRetries: 5, Headers: NewHeaderRotator(pacing.NewSeededJitter(3))})
	f.Fetch(context.Background(), srv.URL)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, agents, 5)
	for _, ua := range agents {
		assert.Contains(t, defaultUserAgents, ua)
	}
}

func TestFetchObserverSeesEveryAttempt(t *testing.T) {
	srv, _ := sequenceServer(t, []int{http.StatusInternalServerError, http.StatusTooManyRequests, http.StatusOK}, nil)
	var seen []models.FetchStatus
	f := newTestFetcher(&pacing.Recorder{}, Options{
		Observer: func(status models.FetchStatus, _ int) { seen = append(seen, status) },
	})

	f.Fetch(context.Background(), srv.URL)

	assert.Equal(t, []models.FetchStatus{models.FetchServerError, models.FetchRateLimited, models.FetchSuccess}, seen)
}

func TestFetchStopsOnCancel(t *testing.T) {
	srv, hits := sequenceServer(t, []int{http.StatusInternalServerError}, nil)
	f := NewFetcher(&http.Client{}, quietLogger(), Options{
		Sleeper: pacing.TimerSleeper{},
		Backoff: func(int, models.FetchOutcome) time.Duration { return time.Hour },
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out := f.Fetch(ctx, srv.URL)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, models.FetchNetworkError, out.Status)
	assert.True(t, errors.Is(out.Err, context.Canceled))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchPerCallOverrides(t *testing.T) {
	srv, hits := sequenceServer(t, []int{http.StatusServiceUnavailable}, nil)
	f := newTestFetcher(&pacing.Recorder{}, Options{MaxRetries: 5})

	out := f.Fetch(context.Background(), srv.URL, WithMaxRetries(1))

	assert.Equal(t, 1, out.Attempt)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want models.FetchStatus
	}{
		{200, models.FetchSuccess},
		{204, models.FetchSuccess},
		{301, models.FetchClientError},
		{400, models.FetchClientError},
		{404, models.FetchClientError},
		{429, models.FetchRateLimited},
		{500, models.FetchServerError},
		{503, models.FetchServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyStatus(tt.code), "code %d", tt.code)
	}
}
