package models

import "fmt"

// Strategy names the discovery or extraction technique that produced a value.
type Strategy int

const (
	StrategyStructuredData Strategy = iota + 1
	StrategyEmbeddedState
	StrategyDOMScan
	StrategyRegexFallback
	StrategyDOMSelector
	StrategyMailto
	StrategyTextRegex
	StrategySecondaryPage
	StrategyByline
)

var strategyNames = map[Strategy]string{
	StrategyStructuredData: "structured_data",
	StrategyEmbeddedState:  "embedded_state",
	StrategyDOMScan:        "dom_scan",
	StrategyRegexFallback:  "regex_fallback",
	StrategyDOMSelector:    "dom_selector",
	StrategyMailto:         "mailto",
	StrategyTextRegex:      "text_regex",
	StrategySecondaryPage:  "secondary_page",
	StrategyByline:         "byline",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	for k, v := range strategyNames {
		if v == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown strategy: %q", string(text))
}

// DiscoveryStrategies is the fixed order the discoverer tries strategies in.
var DiscoveryStrategies = []Strategy{
	StrategyStructuredData,
	StrategyEmbeddedState,
	StrategyDOMScan,
	StrategyRegexFallback,
}

// CandidateURL is a detail-page URL found during discovery.
// URL is always canonical (no query, no fragment, no trailing slash).
type CandidateURL struct {
	URL           string   `json:"url" yaml:"url"`
	DiscoveredVia Strategy `json:"discovered_via" yaml:"discovered_via"`
}
