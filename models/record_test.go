package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBuilderSetIfAbsent(t *testing.T) {
	b := NewRecordBuilder("https://example.com/d/1", "example")

	assert.True(t, b.SetIfAbsent(FieldName, "  Jane Doe ", StrategyStructuredData))
	assert.False(t, b.SetIfAbsent(FieldName, "John Roe", StrategyDOMSelector), "second write must not override")
	assert.False(t, b.SetIfAbsent(FieldCity, "   ", StrategyDOMSelector), "blank values are ignored")

	rec := b.Build()
	name, ok := rec.Get(FieldName)
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", name)

	via, ok := rec.Provenance(FieldName)
	require.True(t, ok)
	assert.Equal(t, StrategyStructuredData, via)

	_, ok = rec.Get(FieldCity)
	assert.False(t, ok)
	_, ok = rec.Provenance(FieldCity)
	assert.False(t, ok)
	assert.Equal(t, []Field{FieldEmail, FieldCity, FieldBrokerage, FieldLastSale, FieldPrice}, b.Missing())
}

func TestRecordIsIndependentOfBuilder(t *testing.T) {
	b := NewRecordBuilder("https://example.com/d/1", "example")
	b.SetIfAbsent(FieldPrice, "$100", StrategyDOMSelector)
	rec := b.Build()

	b.SetIfAbsent(FieldCity, "Austin", StrategyDOMSelector)
	fields := rec.Fields()
	fields[FieldName] = "mutated"

	assert.Equal(t, 1, rec.Len())
	assert.Equal(t, "", rec.Value(FieldName))
}

func TestRecordJSON(t *testing.T) {
	b := NewRecordBuilder("https://example.com/d/1", "example")
	b.SetIfAbsent(FieldEmail, "a@b.co", StrategyMailto)

	data, err := json.Marshal(b.Build())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"source_url": "https://example.com/d/1",
		"source": "example",
		"fields": {"email": "a@b.co"},
		"provenance": {"email": "mailto"}
	}`, string(data))
}

func TestSourceFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.realtor.com/realestateandhomes-search/Austin_TX", "realtor"},
		{"https://zillow.com/homes/", "zillow"},
		{"http://localhost:8080/x", "localhost"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceFromURL(tt.url))
		})
	}
}

func TestTaskTransitions(t *testing.T) {
	assert.True(t, TaskPending.CanTransition(TaskFetching))
	assert.True(t, TaskFetching.CanTransition(TaskBlocked))
	assert.True(t, TaskExtracted.CanTransition(TaskDone))
	assert.False(t, TaskPending.CanTransition(TaskExtracted))
	assert.False(t, TaskDone.CanTransition(TaskFetching))
	assert.True(t, TaskFailed.Terminal())
	assert.False(t, TaskFetching.Terminal())
}

func TestCrawlRunDedup(t *testing.T) {
	run := NewCrawlRun()
	require.NotEmpty(t, run.ID)

	assert.True(t, run.AddCandidate(CandidateURL{URL: "https://a.com/d/1", DiscoveredVia: StrategyDOMScan}))
	assert.False(t, run.AddCandidate(CandidateURL{URL: "https://a.com/d/1", DiscoveredVia: StrategyRegexFallback}))
	assert.Len(t, run.Candidates, 1)
	assert.Equal(t, StrategyDOMScan, run.Candidates[0].DiscoveredVia)
	assert.Equal(t, 1, run.Stats.Discovered)
}
