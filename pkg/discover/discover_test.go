package discover

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dtnitsch/lead-crawler/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = "https://homes.example.com/search/austin"

func newDiscoverer(t *testing.T, substrings ...string) *Discoverer {
	t.Helper()
	pattern := DefaultDetailPattern()
	if len(substrings) > 0 {
		pattern = DetailPattern{Substrings: substrings}
	}
	return New(Options{Pattern: pattern, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func urls(cs []models.CandidateURL) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.URL
	}
	return out
}

func TestItemListEntriesAreDiscovered(t *testing.T) {
	body := []byte(`<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"ItemList","itemListElement":[
  {"@type":"ListItem","position":1,"url":"/d/1"},
  {"@type":"ListItem","position":2,"url":"/d/2"},
  {"@type":"ListItem","position":3,"url":"/d/3"}
]}</script></head><body></body></html>`)

	got, err := newDiscoverer(t).Discover(seed, body, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.CandidateURL{
		{URL: "https://homes.example.com/d/1", DiscoveredVia: models.StrategyStructuredData},
		{URL: "https://homes.example.com/d/2", DiscoveredVia: models.StrategyStructuredData},
		{URL: "https://homes.example.com/d/3", DiscoveredVia: models.StrategyStructuredData},
	}, got)
}

func TestNestedItemListAndItemShapes(t *testing.T) {
	body := []byte(`<script type="application/ld+json">
{"@type":"SearchResultsPage","mainEntity":{"@type":"ItemList","itemListElement":[
  {"@type":"ListItem","item":{"@type":"House","url":"https://homes.example.com/detail/a"}},
  {"@type":"ListItem","item":"https://homes.example.com/detail/b"},
  "https://homes.example.com/detail/c"
]}}</script>`)

	got, err := newDiscoverer(t).Discover(seed, body, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://homes.example.com/detail/a",
		"https://homes.example.com/detail/b",
		"https://homes.example.com/detail/c",
	}, urls(got))
}

func TestStrategyFallbackOrder(t *testing.T) {
	body := []byte(`<html><head>
<script id="__NEXT_DATA__" type="application/json">{"props":{"listings":[{"href":"\/detail\/state-1"}]}}</script>
</head><body>
<a href="/detail/dom-1?ref=search">one</a>
<a href="/detail/state-1/">dup of state</a>
<a href="/about">about</a>
<p>see https://homes.example.com/detail/regex-1.</p>
</body></html>`)

	got, err := newDiscoverer(t).Discover(seed, body, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.CandidateURL{
		{URL: "https://homes.example.com/detail/state-1", DiscoveredVia: models.StrategyEmbeddedState},
		{URL: "https://homes.example.com/detail/dom-1", DiscoveredVia: models.StrategyDOMScan},
		{URL: "https://homes.example.com/detail/regex-1", DiscoveredVia: models.StrategyRegexFallback},
	}, got)
}

func TestFirstStrategyKeepsTheTag(t *testing.T) {
	body := []byte(`<script type="application/ld+json">
{"@type":"ItemList","itemListElement":[{"url":"https://homes.example.com/detail/1"}]}</script>
<a href="https://homes.example.com/detail/1#photos">same listing</a>`)

	got, err := newDiscoverer(t).Discover(seed, body, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.StrategyStructuredData, got[0].DiscoveredVia)
}

func TestLimitStopsMidStrategy(t *testing.T) {
	body := []byte(`<a href="/detail/1">1</a><a href="/detail/2">2</a><a href="/detail/3">3</a>
<p>https://homes.example.com/detail/9</p>`)

	got, err := newDiscoverer(t).Discover(seed, body, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://homes.example.com/detail/1",
		"https://homes.example.com/detail/2",
	}, urls(got))
}

func TestDiscoverIsIdempotent(t *testing.T) {
	body := []byte(`<a href="/detail/1">1</a><a href="/detail/1?x=2">1 again</a><a href="/detail/2/">2</a>`)
	d := newDiscoverer(t)

	first, err := d.Discover(seed, body, 10)
	require.NoError(t, err)
	second, err := d.Discover(seed, body, 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestMalformedStructuredDataFallsThrough(t *testing.T) {
	body := []byte(`<script type="application/ld+json">{"@type":"ItemList", "itemListElement": [</script>
<a href="/detail/7">seven</a>`)

	got, err := newDiscoverer(t).Discover(seed, body, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.StrategyDOMScan, got[0].DiscoveredVia)
}

func TestStandaloneObjectsNeedThePattern(t *testing.T) {
	body := []byte(`<script type="application/ld+json">[
  {"@type":"Organization","url":"https://homes.example.com/"},
  {"@type":"House","url":"https://homes.example.com/home-details/42"}
]</script>`)

	got, err := newDiscoverer(t).Discover(seed, body, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://homes.example.com/home-details/42"}, urls(got))
}

func TestEmptyPageAndZeroLimit(t *testing.T) {
	d := newDiscoverer(t)

	got, err := d.Discover(seed, []byte(`<html><body>nothing here</body></html>`), 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = d.Discover(seed, []byte(`<a href="/detail/1">1</a>`), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOnCandidateHook(t *testing.T) {
	var seen []models.Strategy
	d := New(Options{
		Pattern:     DetailPattern{Substrings: []string{"/detail/"}},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnCandidate: func(c models.CandidateURL) { seen = append(seen, c.DiscoveredVia) },
	})

	_, err := d.Discover(seed, []byte(`<a href="/detail/1">1</a>`), 5)
	require.NoError(t, err)
	assert.Equal(t, []models.Strategy{models.StrategyDOMScan}, seen)
}

func TestNewDetailPattern(t *testing.T) {
	p, err := NewDetailPattern([]string{"/homedetails/", `~/listing/\d+$~`})
	require.NoError(t, err)
	assert.True(t, p.Match("https://x.com/homedetails/1"))
	assert.True(t, p.Match("https://x.com/listing/123"))
	assert.False(t, p.Match("https://x.com/listing/abc"))

	p, err = NewDetailPattern(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultDetailSubstrings, p.Substrings)

	_, err = NewDetailPattern([]string{"~(unclosed~"})
	assert.Error(t, err)
}
