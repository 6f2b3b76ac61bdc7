package fetcher

import (
	"net/http"

	"github.com/dtnitsch/lead-crawler/pkg/pacing"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

var defaultLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.8,en-US;q=0.7",
	"en-US,en;q=0.8",
}

const (
	defaultAccept  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	defaultReferer = "https://www.google.com/"
)

// HeaderRotator hands out a fresh browser-like header set per attempt.
type HeaderRotator struct {
	UserAgents []string
	Languages  []string
	Accept     string
	Referer    string
	jitter     *pacing.Jitter
}

func NewHeaderRotator(jitter *pacing.Jitter) *HeaderRotator {
	if jitter == nil {
		jitter = pacing.NewJitter()
	}
	return &HeaderRotator{
		UserAgents: defaultUserAgents,
		Languages:  defaultLanguages,
		Accept:     defaultAccept,
		Referer:    defaultReferer,
		jitter:     jitter,
	}
}

// Next picks a user agent and language at random.
func (h *HeaderRotator) Next() http.Header {
	header := make(http.Header)
	if len(h.UserAgents) > 0 {
		header.Set("User-Agent", h.UserAgents[h.jitter.Intn(len(h.UserAgents))])
	}
	if len(h.Languages) > 0 {
		header.Set("Accept-Language", h.Languages[h.jitter.Intn(len(h.Languages))])
	}
	if h.Accept != "" {
		header.Set("Accept", h.Accept)
	}
	if h.Referer != "" {
		header.Set("Referer", h.Referer)
	}
	return header
}
