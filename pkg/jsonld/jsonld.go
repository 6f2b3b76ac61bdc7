// Package jsonld pulls linked-data objects out of
// <script type="application/ld+json"> blocks.
package jsonld

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseError describes one block that could not be decoded in full.
type ParseError struct {
	Block int
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ld+json block %d: %v", e.Block, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Document is what a page declares. Blocks holds the decoded top-level
// values in page order. Objects is the flattened view: array blocks
// contribute each element and @graph members follow their container.
type Document struct {
	Blocks  []any
	Objects []map[string]any
	Errors  []error
}

// FromHTML parses body and collects its ld+json blocks.
func FromHTML(body []byte) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Document{}, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return FromDocument(doc), nil
}

// FromDocument collects the ld+json blocks of an already parsed page.
// Malformed blocks are skipped and reported in Errors.
func FromDocument(doc *goquery.Document) Document {
	var out Document
	doc.Find("script").Each(func(i int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		if !strings.EqualFold(strings.TrimSpace(typ), "application/ld+json") {
			return
		}
		values, err := DecodeBlock(s.Text())
		if err != nil {
			out.Errors = append(out.Errors, &ParseError{Block: i, Err: err})
		}
		for _, v := range values {
			out.Blocks = append(out.Blocks, v)
			out.Objects = append(out.Objects, flatten(v)...)
		}
	})
	return out
}

// DecodeBlock decodes the text of one script block. Several objects written
// back to back are returned in order. When decoding stops part way, the
// values read so far are returned with the error.
func DecodeBlock(raw string) ([]any, error) {
	text := cleanBlock(raw)
	if text == "" {
		return nil, nil
	}

	values, err := decodeStream(text)
	if err == nil {
		return values, nil
	}

	// Some pages glue objects together with junk in between; retry each
	// brace-delimited chunk on its own.
	var recovered []any
	for _, chunk := range splitConcatenated(text) {
		vs, chunkErr := decodeStream(chunk)
		if chunkErr == nil {
			recovered = append(recovered, vs...)
		}
	}
	if len(recovered) > len(values) {
		values = recovered
	}
	return values, err
}

func decodeStream(text string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var values []any
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
}

func cleanBlock(raw string) string {
	text := strings.TrimSpace(raw)
	for _, marker := range []string{"//<![CDATA[", "/*<![CDATA[*/", "<![CDATA[", "//]]>", "/*]]>*/", "]]>"} {
		text = strings.ReplaceAll(text, marker, "")
	}
	text = strings.TrimSpace(text)
	return strings.TrimRight(text, "; \n\t")
}

func splitConcatenated(text string) []string {
	var chunks []string
	depth, start := 0, -1
	inString, escaped := false, false
	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					chunks = append(chunks, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return chunks
}

func flatten(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, flatten(item)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{t}
		if graph, ok := t["@graph"]; ok {
			out = append(out, flatten(graph)...)
		}
		return out
	default:
		return nil
	}
}

// Types returns the lowercased @type values of obj.
func Types(obj map[string]any) []string {
	var out []string
	switch t := obj["@type"].(type) {
	case string:
		out = append(out, strings.ToLower(t))
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, strings.ToLower(s))
			}
		}
	}
	return out
}

// HasType reports whether obj declares any of names (case-insensitive).
func HasType(obj map[string]any, names ...string) bool {
	for _, typ := range Types(obj) {
		for _, n := range names {
			if typ == strings.ToLower(n) {
				return true
			}
		}
	}
	return false
}

// TypeHasSuffix reports whether any @type ends with suffix, so "agent"
// matches "RealEstateAgent" and "InsuranceAgent".
func TypeHasSuffix(obj map[string]any, suffix string) bool {
	suffix = strings.ToLower(suffix)
	for _, typ := range Types(obj) {
		if strings.HasSuffix(typ, suffix) {
			return true
		}
	}
	return false
}

// Get follows keys through nested objects. A list along the way is
// searched for the first element that resolves.
func Get(v any, keys ...string) any {
	if len(keys) == 0 {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		next, ok := t[keys[0]]
		if !ok {
			return nil
		}
		return Get(next, keys[1:]...)
	case []any:
		for _, item := range t {
			if got := Get(item, keys...); got != nil {
				return got
			}
		}
	}
	return nil
}

// String renders a scalar as text. Objects yield their "name" or "@value",
// lists their first non-empty element.
func String(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return fmt.Sprintf("%v", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case map[string]any:
		if s := String(t["@value"]); s != "" {
			return s
		}
		return String(t["name"])
	case []any:
		for _, item := range t {
			if s := String(item); s != "" {
				return s
			}
		}
	}
	return ""
}

// Walk visits every object under v depth-first. List elements are visited
// in order and object keys in sorted order. Returning false from fn stops
// descent below that object.
func Walk(v any, fn func(obj map[string]any) bool) {
	switch t := v.(type) {
	case map[string]any:
		if !fn(t) {
			return
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			Walk(t[k], fn)
		}
	case []any:
		for _, item := range t {
			Walk(item, fn)
		}
	}
}
