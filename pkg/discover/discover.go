// Package discover finds listing detail URLs on a seed page. Strategies are
// tried in a fixed order, from the most structured source to a raw regex
// scan, until the per-seed limit is met.
package discover

import (
	"bytes"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/lead-crawler/internal/common"
	"github.com/dtnitsch/lead-crawler/models"
	"github.com/dtnitsch/lead-crawler/pkg/jsonld"
)

var (
	absoluteURLPattern = regexp.MustCompile(`https?://[^\s"'<>\\)]+`)
	quotedPathPattern  = regexp.MustCompile(`"(/[^"\s<>\\]+)"`)
	stateMarkers       = []string{
		"__INITIAL_STATE__",
		"__PRELOADED_STATE__",
		"__APOLLO_STATE__",
		"__REDUX_STATE__",
		"__NUXT__",
	}
	jsonSlashEscapes = strings.NewReplacer(`\/`, `/`, `\u002F`, `/`, `\u002f`, `/`)
)

type Options struct {
	Pattern DetailPattern
	Logger  *slog.Logger
	// OnCandidate, when set, is called for every accepted candidate.
	OnCandidate func(models.CandidateURL)
}

type Discoverer struct {
	pattern     DetailPattern
	logger      *slog.Logger
	onCandidate func(models.CandidateURL)
	strategies  []strategy
}

type strategy struct {
	kind models.Strategy
	urls func(p *page) iter.Seq[string]
}

// page is a seed page parsed once and shared by every strategy.
type page struct {
	base *url.URL
	raw  []byte
	doc  *goquery.Document
	ld   jsonld.Document
}

func New(opts Options) *Discoverer {
	if len(opts.Pattern.Substrings) == 0 && opts.Pattern.Regexp == nil {
		opts.Pattern = DefaultDetailPattern()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Discoverer{
		pattern:     opts.Pattern,
		logger:      opts.Logger,
		onCandidate: opts.OnCandidate,
	}
	d.strategies = []strategy{
		{models.StrategyStructuredData, d.structuredData},
		{models.StrategyEmbeddedState, d.embeddedState},
		{models.StrategyDOMScan, d.domScan},
		{models.StrategyRegexFallback, d.regexFallback},
	}
	return d
}

// Discover returns up to limit canonical detail URLs found in body, in the
// order they were found. A URL found by several strategies keeps the first.
func (d *Discoverer) Discover(seedURL string, body []byte, limit int) ([]models.CandidateURL, error) {
	if limit <= 0 {
		return nil, nil
	}
	base, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed URL: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	pg := &page{base: base, raw: body, doc: doc, ld: jsonld.FromDocument(doc)}
	for _, perr := range pg.ld.Errors {
		d.logger.Debug("skipping malformed structured data", "seed", seedURL, "error", perr)
	}

	seen := make(map[string]struct{})
	var out []models.CandidateURL
	for _, s := range d.strategies {
		if len(out) >= limit {
			break
		}
		before := len(out)
		for raw := range s.urls(pg) {
			abs, ok := common.Resolve(base, raw)
			if !ok {
				continue
			}
			canonical, err := common.Canonicalize(abs)
			if err != nil {
				continue
			}
			if _, dup := seen[canonical]; dup {
				continue
			}
			seen[canonical] = struct{}{}
			c := models.CandidateURL{URL: canonical, DiscoveredVia: s.kind}
			out = append(out, c)
			if d.onCandidate != nil {
				d.onCandidate(c)
			}
			if len(out) >= limit {
				break
			}
		}
		d.logger.Debug("discovery strategy finished", "seed", seedURL, "strategy", s.kind, "found", len(out)-before)
	}
	return out, nil
}

// structuredData yields ItemList entries (trusted as detail links) and any
// other object url that matches the detail pattern.
func (d *Discoverer) structuredData(p *page) iter.Seq[string] {
	return func(yield func(string) bool) {
		stopped := false
		emit := func(u string) {
			if !stopped && u != "" && !yield(u) {
				stopped = true
			}
		}
		for _, block := range p.ld.Blocks {
			jsonld.Walk(block, func(obj map[string]any) bool {
				if stopped {
					return false
				}
				if jsonld.HasType(obj, "ItemList") {
					for _, u := range itemListURLs(obj["itemListElement"]) {
						emit(u)
					}
					return !stopped
				}
				if u, ok := obj["url"].(string); ok && d.pattern.Match(u) {
					emit(strings.TrimSpace(u))
				}
				return !stopped
			})
			if stopped {
				return
			}
		}
	}
}

func itemListURLs(elements any) []string {
	var list []any
	switch t := elements.(type) {
	case []any:
		list = t
	case nil:
		return nil
	default:
		list = []any{t}
	}

	var out []string
	for _, el := range list {
		switch t := el.(type) {
		case string:
			out = append(out, strings.TrimSpace(t))
		case map[string]any:
			if u := jsonld.String(t["url"]); u != "" {
				out = append(out, u)
				continue
			}
			switch item := t["item"].(type) {
			case string:
				out = append(out, strings.TrimSpace(item))
			case map[string]any:
				if u := jsonld.String(item["url"]); u != "" {
					out = append(out, u)
				} else if id := jsonld.String(item["@id"]); id != "" {
					out = append(out, id)
				}
			}
		}
	}
	return out
}

// embeddedState scans framework state blobs for detail URLs.
func (d *Discoverer) embeddedState(p *page) iter.Seq[string] {
	return func(yield func(string) bool) {
		p.doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			id, _ := s.Attr("id")
			text := s.Text()
			if id != "__NEXT_DATA__" && !containsAny(text, stateMarkers) {
				return true
			}
			for _, u := range scanState(jsonSlashEscapes.Replace(text)) {
				if d.pattern.Match(u) && !yield(u) {
					return false
				}
			}
			return true
		})
	}
}

// scanState returns absolute URLs and quoted root-relative paths in the
// order they appear.
func scanState(text string) []string {
	type hit struct {
		at  int
		url string
	}
	var hits []hit
	for _, loc := range absoluteURLPattern.FindAllStringIndex(text, -1) {
		hits = append(hits, hit{loc[0], text[loc[0]:loc[1]]})
	}
	for _, loc := range quotedPathPattern.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{loc[2], text[loc[2]:loc[3]]})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.url
	}
	return out
}

func (d *Discoverer) domScan(p *page) iter.Seq[string] {
	return func(yield func(string) bool) {
		p.doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			if !d.pattern.Match(href) {
				return true
			}
			return yield(href)
		})
	}
}

func (d *Discoverer) regexFallback(p *page) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, u := range absoluteURLPattern.FindAllString(string(p.raw), -1) {
			u = strings.TrimRight(u, ".,;")
			if d.pattern.Match(u) && !yield(u) {
				return
			}
		}
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
