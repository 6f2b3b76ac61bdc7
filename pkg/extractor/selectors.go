package extractor

import (
	"fmt"
	"strings"

	"github.com/dtnitsch/lead-crawler/models"
)

// Selectors lists, per field, the CSS selectors to try in order.
type Selectors map[models.Field][]string

// DefaultSelectors covers the listing and agent-profile layouts seen on the
// supported sites.
func DefaultSelectors() Selectors {
	return Selectors{
		models.FieldName: {
			"[data-testid='profile-name']",
			".listing-agent-name",
			".agent-name",
			"a.ds-agent-name",
			".zsg-agent-name",
			".ds-listing-agent-title a",
			".broker-name",
		},
		models.FieldEmail: {
			"[data-testid='agent-email']",
			"[itemprop='email']",
			".agent-email",
		},
		models.FieldCity: {
			"[data-testid='profile-location']",
			"[itemprop='addressLocality']",
			".listing-city",
			".ldp-address-city",
		},
		models.FieldBrokerage: {
			"[data-testid='profile-brokerage']",
			".ds-listing-agent-company",
			".zsg-agent-company",
			".agent-company",
			".brokerage-name",
		},
		models.FieldLastSale: {
			"[data-testid='last-sold']",
			".last-sold",
			":containsOwn('Last sold')",
		},
		models.FieldPrice: {
			".price",
			".ldp-price",
			".listing-price",
			"[data-testid='price']",
			"[itemprop='price']",
		},
	}
}

// Merge returns a copy of s where every field present in override replaces
// the default list.
func (s Selectors) Merge(override Selectors) Selectors {
	out := make(Selectors, len(s))
	for f, list := range s {
		out[f] = append([]string(nil), list...)
	}
	for f, list := range override {
		if len(list) > 0 {
			out[f] = append([]string(nil), list...)
		}
	}
	return out
}

// ParseSelectors reads overrides written as "price:.a|.b,name:.agent".
// Selectors themselves therefore cannot contain commas.
func ParseSelectors(raw string) (Selectors, error) {
	out := make(Selectors)
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}

	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid selector part: %s", part)
		}
		field, err := ParseField(kv[0])
		if err != nil {
			return nil, err
		}
		for _, sel := range strings.Split(kv[1], "|") {
			if sel = strings.TrimSpace(sel); sel != "" {
				out[field] = append(out[field], sel)
			}
		}
	}
	return out, nil
}

// ParseField accepts a field name in either "lastSale" or "last_sale" form.
func ParseField(name string) (models.Field, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", ""))
	for _, f := range models.AllFields {
		if strings.ToLower(string(f)) == key {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field: %s", name)
}
