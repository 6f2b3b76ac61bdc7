// Package models defines the data structures shared by the crawl pipeline.
package models

import (
	"net/url"
	"strings"
)

// Seed is a listing or search page the crawl starts from.
type Seed struct {
	URL          string `json:"url" yaml:"url"`
	PerSeedLimit int    `json:"per_seed_limit" yaml:"per_seed_limit"`
	Source       string `json:"source,omitempty" yaml:"source,omitempty"`
}

// NewSeed builds a Seed, deriving Source from the host when no label is given.
func NewSeed(rawURL string, perSeedLimit int, source string) Seed {
	if source == "" {
		source = SourceFromURL(rawURL)
	}
	return Seed{URL: rawURL, PerSeedLimit: perSeedLimit, Source: source}
}

// SourceFromURL returns a short site label for a URL: "https://www.realtor.com/x" -> "realtor".
func SourceFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	labels := strings.Split(host, ".")
	if len(labels) >= 2 {
		return labels[len(labels)-2]
	}
	return labels[0]
}
