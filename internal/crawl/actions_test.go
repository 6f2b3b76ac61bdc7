package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dtnitsch/lead-crawler/internal/config"
	"github.com/dtnitsch/lead-crawler/models"
	"github.com/dtnitsch/lead-crawler/pkg/db"
	"github.com/dtnitsch/lead-crawler/pkg/metrics"
	"github.com/dtnitsch/lead-crawler/pkg/pacing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><head><script type="application/ld+json">
{"@type":"ItemList","itemListElement":[{"url":"/d/1"},{"url":"/d/2"},{"url":"/d/3"}]}
</script></head></html>`)
	})
	mux.HandleFunc("/d/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/d/")
		if id == "3" {
			_, _ = io.WriteString(w, "<html><body>Pardon our interruption</body></html>")
			return
		}
		fmt.Fprintf(w, `<html><body>
<span class="agent-name">Agent %s</span>
<a href="mailto:agent%s@homes.example">Email</a>
<span class="price">$%s00,000</span>
</body></html>`, id, id, id)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(seed string) *config.Config {
	return &config.Config{
		Seeds:              []string{seed},
		PerSeedLimit:       6,
		MaxTotal:           12,
		Concurrency:        2,
		FetchTimeoutMS:     2000,
		MaxRetries:         2,
		BackoffBaseSeconds: 0.01,
		PolitenessMinMS:    1000,
		PolitenessMaxMS:    3000,
		KeepEmptyRecords:   true,
		LogType:            "text",
		Store:              &config.StoreConfig{Driver: "sqlite", DSN: ":memory:", NaturalKey: "email"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteCrawlsPersistsAndRenders(t *testing.T) {
	srv := listingServer(t)
	cfg := testConfig(srv.URL + "/search")

	store, err := db.OpenPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var stdout bytes.Buffer
	out, err := Execute(context.Background(), cfg, Deps{
		Store:   store,
		Metrics: metrics.New(),
		Logger:  quietLogger(),
		Sleeper: &pacing.Recorder{},
	}, OutputOptions{Format: "json"}, &stdout)
	require.NoError(t, err)

	assert.Equal(t, StatusPartialFailure, out.Status)
	assert.Equal(t, models.RunStats{Discovered: 3, Attempted: 3, Succeeded: 2, Blocked: 1}, out.Stats)
	require.NotNil(t, out.Store)
	assert.Equal(t, 2, out.Store.Inserted)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, out.RunID, decoded["run_id"])
	assert.Equal(t, "partial_failure", decoded["status"])
	assert.Len(t, decoded["records"], 2)

	leads, err := store.ListLeads(context.Background(), db.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, leads, 2)
	runs, err := store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, out.RunID, runs[0].RunID)
}

func TestExecuteFieldFilterAndYAML(t *testing.T) {
	srv := listingServer(t)
	cfg := testConfig(srv.URL + "/search")

	var stdout bytes.Buffer
	_, err := Execute(context.Background(), cfg, Deps{
		Logger:  quietLogger(),
		Sleeper: &pacing.Recorder{},
	}, OutputOptions{Format: "yaml", Fields: "email,source_url"}, &stdout)
	require.NoError(t, err)

	var decoded struct {
		Status  string              `yaml:"status"`
		Records []map[string]string `yaml:"records"`
	}
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &decoded))
	require.Len(t, decoded.Records, 2)
	for _, r := range decoded.Records {
		assert.Len(t, r, 2)
		assert.Contains(t, r["email"], "@homes.example")
		assert.NotEmpty(t, r["source_url"])
	}
}

func TestExecuteRejectsBadDetailPattern(t *testing.T) {
	cfg := testConfig("https://homes.example.com/search")
	cfg.DetailPatterns = []string{"~(~"}

	_, err := Execute(context.Background(), cfg, Deps{Logger: quietLogger()}, OutputOptions{}, io.Discard)
	assert.Error(t, err)
}

func TestRunStatusAndExitCode(t *testing.T) {
	rec := models.NewRecordBuilder("https://x.example/d/1", "x").Build()
	tests := []struct {
		name        string
		run         *models.CrawlRun
		interrupted bool
		want        string
		code        int
	}{
		{name: "clean", run: &models.CrawlRun{Records: []models.ExtractionRecord{rec}}, want: StatusSuccess, code: 0},
		{name: "some blocked", run: &models.CrawlRun{Records: []models.ExtractionRecord{rec}, Stats: models.RunStats{Blocked: 1}}, want: StatusPartialFailure, code: 1},
		{name: "nothing extracted", run: &models.CrawlRun{Stats: models.RunStats{Failed: 3}}, want: StatusFailed, code: 2},
		{name: "interrupted", run: &models.CrawlRun{}, interrupted: true, want: StatusInterrupted, code: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RunStatus(tt.run, tt.interrupted)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.code, ExitCode(got))
		})
	}
}

func TestBuildOutputTerse(t *testing.T) {
	b := models.NewRecordBuilder("https://x.example/d/1", "x")
	b.SetIfAbsent(models.FieldLastSale, "$1 on 2020-01-01", models.StrategyStructuredData)
	b.SetIfAbsent(models.FieldEmail, "a@x.example", models.StrategyMailto)
	run := &models.CrawlRun{ID: "r1", Records: []models.ExtractionRecord{b.Build()}}

	out := BuildOutput(run, StatusSuccess, nil, "last_sale,email", true)

	rows, ok := out.Records.([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]interface{}{"ls": "$1 on 2020-01-01", "e": "a@x.example"}, rows[0])
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := Render(FinalOutput{}, "xml")
	assert.Error(t, err)
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := NewLogger(&config.Config{LogType: "json", LogLevel: "warn"}, &buf)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "url", "https://x.example")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "https://x.example", entry["url"])
}

func TestNewLoggerDebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(&config.Config{LogType: "text", LogLevel: "error", Debug: true}, &buf)

	logger.Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}
