package models

import (
	"encoding/json"
	"strings"
)

// Field is one of the lead attributes the extractor knows about.
type Field string

const (
	FieldName      Field = "name"
	FieldEmail     Field = "email"
	FieldCity      Field = "city"
	FieldBrokerage Field = "brokerage"
	FieldLastSale  Field = "lastSale"
	FieldPrice     Field = "price"
)

// AllFields lists the recognized fields in output order.
var AllFields = []Field{FieldName, FieldEmail, FieldCity, FieldBrokerage, FieldLastSale, FieldPrice}

// ExtractionRecord holds the fields pulled from one detail page.
// A field is either missing or non-empty, and every present field has a
// provenance entry. Records are built with a RecordBuilder and never change
// afterwards.
type ExtractionRecord struct {
	SourceURL  string
	Source     string
	fields     map[Field]string
	provenance map[Field]Strategy
}

// Get returns the value of a field and whether it is present.
func (r ExtractionRecord) Get(f Field) (string, bool) {
	v, ok := r.fields[f]
	return v, ok
}

// Value returns the field value or "" when absent.
func (r ExtractionRecord) Value(f Field) string {
	return r.fields[f]
}

// Provenance returns the strategy that produced a present field.
func (r ExtractionRecord) Provenance(f Field) (Strategy, bool) {
	s, ok := r.provenance[f]
	return s, ok
}

// Len is the number of present fields.
func (r ExtractionRecord) Len() int {
	return len(r.fields)
}

func (r ExtractionRecord) IsEmpty() bool {
	return len(r.fields) == 0
}

// Fields returns a copy of the present fields.
func (r ExtractionRecord) Fields() map[Field]string {
	out := make(map[Field]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// ProvenanceMap returns a copy of the field provenance.
func (r ExtractionRecord) ProvenanceMap() map[Field]Strategy {
	out := make(map[Field]Strategy, len(r.provenance))
	for k, v := range r.provenance {
		out[k] = v
	}
	return out
}

type recordView struct {
	SourceURL  string             `json:"source_url" yaml:"source_url"`
	Source     string             `json:"source" yaml:"source"`
	Fields     map[Field]string   `json:"fields" yaml:"fields"`
	Provenance map[Field]Strategy `json:"provenance" yaml:"provenance"`
}

func (r ExtractionRecord) view() recordView {
	return recordView{
		SourceURL:  r.SourceURL,
		Source:     r.Source,
		Fields:     r.Fields(),
		Provenance: r.ProvenanceMap(),
	}
}

func (r ExtractionRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.view())
}

func (r ExtractionRecord) MarshalYAML() (interface{}, error) {
	return r.view(), nil
}

// RecordBuilder accumulates fields with set-if-absent semantics.
type RecordBuilder struct {
	sourceURL  string
	source     string
	fields     map[Field]string
	provenance map[Field]Strategy
}

func NewRecordBuilder(sourceURL, source string) *RecordBuilder {
	return &RecordBuilder{
		sourceURL:  sourceURL,
		source:     source,
		fields:     make(map[Field]string),
		provenance: make(map[Field]Strategy),
	}
}

// SetIfAbsent stores value for f unless f is already set. Blank values are
// ignored. It reports whether the value was stored.
func (b *RecordBuilder) SetIfAbsent(f Field, value string, via Strategy) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if _, exists := b.fields[f]; exists {
		return false
	}
	b.fields[f] = value
	b.provenance[f] = via
	return true
}

func (b *RecordBuilder) Has(f Field) bool {
	_, ok := b.fields[f]
	return ok
}

// Missing returns the recognized fields not yet set, in AllFields order.
func (b *RecordBuilder) Missing() []Field {
	var out []Field
	for _, f := range AllFields {
		if !b.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Build returns an independent record; the builder may keep being used.
func (b *RecordBuilder) Build() ExtractionRecord {
	rec := ExtractionRecord{
		SourceURL:  b.sourceURL,
		Source:     b.source,
		fields:     make(map[Field]string, len(b.fields)),
		provenance: make(map[Field]Strategy, len(b.provenance)),
	}
	for k, v := range b.fields {
		rec.fields[k] = v
	}
	for k, v := range b.provenance {
		rec.provenance[k] = v
	}
	return rec
}
