// Package extractor turns a fetched detail page into an ExtractionRecord.
// Structured data wins over DOM selectors; the email field has extra
// fallbacks including one optional fetch of the agent's profile page.
package extractor

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/lead-crawler/internal/common"
	"github.com/dtnitsch/lead-crawler/models"
	"github.com/dtnitsch/lead-crawler/pkg/jsonld"
)

// SecondaryFetch retrieves a linked page. Errors are not fatal to extraction.
type SecondaryFetch func(ctx context.Context, url string) ([]byte, error)

var (
	profileTextHints = []string{"agent profile", "view profile", "contact agent", "view agent", "profile"}
	profileHrefHints = []string{"/profile/", "/realestateagents/", "/agent/", "/agents/"}
)

type Options struct {
	Selectors Selectors
	Logger    *slog.Logger
}

type Extractor struct {
	selectors Selectors
	logger    *slog.Logger
}

func New(opts Options) *Extractor {
	selectors := DefaultSelectors()
	if opts.Selectors != nil {
		selectors = selectors.Merge(opts.Selectors)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{selectors: selectors, logger: opts.Logger}
}

// Extract builds a record for pageURL. It never fails: unparseable pages and
// failed secondary fetches yield a record with fewer (possibly zero) fields.
// A nil secondary disables the profile lookup.
func (e *Extractor) Extract(ctx context.Context, pageURL, source string, body []byte, secondary SecondaryFetch) models.ExtractionRecord {
	if source == "" {
		source = models.SourceFromURL(pageURL)
	}
	b := models.NewRecordBuilder(pageURL, source)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("failed to parse detail page", "url", pageURL, "error", err)
		return b.Build()
	}
	base, _ := url.Parse(pageURL)

	ld := jsonld.FromDocument(doc)
	for _, perr := range ld.Errors {
		e.logger.Debug("skipping malformed structured data", "url", pageURL, "error", perr)
	}
	applyStructured(b, ld)

	e.applySelectors(b, doc, models.StrategyDOMSelector)

	if !b.Has(models.FieldName) && base != nil {
		b.SetIfAbsent(models.FieldName, byline(body, base), models.StrategyByline)
	}

	if !b.Has(models.FieldEmail) {
		b.SetIfAbsent(models.FieldEmail, mailtoEmail(doc), models.StrategyMailto)
	}
	if !b.Has(models.FieldEmail) {
		b.SetIfAbsent(models.FieldEmail, findEmail(visibleText(doc)), models.StrategyTextRegex)
	}
	if !b.Has(models.FieldEmail) && secondary != nil {
		e.fromProfile(ctx, b, doc, base, pageURL, secondary)
	}

	rec := b.Build()
	e.logger.Debug("extracted record", "url", pageURL, "fields", rec.Len())
	return rec
}

func (e *Extractor) applySelectors(b *models.RecordBuilder, doc *goquery.Document, via models.Strategy) {
	for _, f := range models.AllFields {
		if b.Has(f) {
			continue
		}
		for _, sel := range e.selectors[f] {
			if v := selectText(doc, sel, f); v != "" {
				b.SetIfAbsent(f, v, via)
				break
			}
		}
	}
}

// selectText returns the first non-empty value among the matches of sel.
func selectText(doc *goquery.Document, sel string, f models.Field) string {
	var value string
	doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v := collapse(s.Text())
		if v == "" {
			v, _ = s.Attr("content")
			v = collapse(v)
		}
		v = cleanField(f, v)
		if v != "" {
			value = v
			return false
		}
		return true
	})
	return value
}

func cleanField(f models.Field, v string) string {
	switch f {
	case models.FieldLastSale:
		return strings.TrimSpace(lastSoldLabel.ReplaceAllString(v, ""))
	case models.FieldEmail:
		v = strings.TrimPrefix(v, "mailto:")
		return findEmail(v)
	}
	return v
}

// fromProfile follows one profile link and looks for the email there. Any
// other field still missing may be filled from the same page.
func (e *Extractor) fromProfile(ctx context.Context, b *models.RecordBuilder, doc *goquery.Document, base *url.URL, pageURL string, secondary SecondaryFetch) {
	link := profileLink(doc, base)
	if link == "" {
		return
	}

	body, err := secondary(ctx, link)
	if err != nil {
		e.logger.Debug("profile fetch failed", "url", pageURL, "profile", link, "error", err)
		return
	}
	profile, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Debug("failed to parse profile page", "profile", link, "error", err)
		return
	}

	via := models.StrategySecondaryPage
	if !b.SetIfAbsent(models.FieldEmail, mailtoEmail(profile), via) {
		b.SetIfAbsent(models.FieldEmail, findEmail(visibleText(profile)), via)
	}
	e.applySelectors(b, profile, via)
}

// profileLink picks the first anchor that looks like an agent profile, by
// its text or its path.
func profileLink(doc *goquery.Document, base *url.URL) string {
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		lowerHref := strings.ToLower(href)
		if strings.HasPrefix(lowerHref, "mailto:") || strings.HasPrefix(lowerHref, "tel:") {
			return true
		}
		text := strings.ToLower(collapse(s.Text()))
		if !containsAny(text, profileTextHints) && !containsAny(lowerHref, profileHrefHints) {
			return true
		}
		abs, ok := common.Resolve(base, href)
		if !ok {
			return true
		}
		link = abs
		return false
	})
	return link
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
