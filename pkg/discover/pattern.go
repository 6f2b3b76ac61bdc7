package discover

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultDetailSubstrings identify listing detail pages on the sites this
// crawler targets.
var DefaultDetailSubstrings = []string{
	"/realestateandhomes-detail/",
	"/homedetails/",
	"/home-details/",
	"/detail/",
}

// DetailPattern decides whether a URL points at a detail page. A URL
// matches when it contains any substring or matches Regexp.
type DetailPattern struct {
	Substrings []string
	Regexp     *regexp.Regexp
}

func DefaultDetailPattern() DetailPattern {
	return DetailPattern{Substrings: DefaultDetailSubstrings}
}

// NewDetailPattern builds a pattern from config values. Entries wrapped in
// tildes, like "~/listing/\d+~", are compiled as regular expressions; the
// rest are plain substrings. No entries means the default pattern.
func NewDetailPattern(entries []string) (DetailPattern, error) {
	var p DetailPattern
	var exprs []string
	for _, e := range entries {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
		case len(e) > 2 && strings.HasPrefix(e, "~") && strings.HasSuffix(e, "~"):
			exprs = append(exprs, "(?:"+e[1:len(e)-1]+")")
		default:
			p.Substrings = append(p.Substrings, e)
		}
	}
	if len(exprs) > 0 {
		re, err := regexp.Compile(strings.Join(exprs, "|"))
		if err != nil {
			return DetailPattern{}, fmt.Errorf("invalid detail pattern: %w", err)
		}
		p.Regexp = re
	}
	if len(p.Substrings) == 0 && p.Regexp == nil {
		return DefaultDetailPattern(), nil
	}
	return p, nil
}

func (p DetailPattern) Match(u string) bool {
	for _, s := range p.Substrings {
		if strings.Contains(u, s) {
			return true
		}
	}
	return p.Regexp != nil && p.Regexp.MatchString(u)
}
