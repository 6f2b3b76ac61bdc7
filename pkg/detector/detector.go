// Package detector classifies fetched pages that are bot walls rather than
// real content.
package detector

import (
	"strings"

	"github.com/dtnitsch/lead-crawler/models"
)

// DefaultKeywords are checked in order against the lowercased body.
var DefaultKeywords = []string{
	"captcha",
	"verify you are human",
	"access denied",
	"unusual traffic",
	"distil",
	"are you a robot",
	"pardon our interruption",
	"request blocked",
}

type Detector struct {
	keywords []string
}

// New returns a Detector for the given keywords, or DefaultKeywords when
// none are passed. Keywords are matched case-insensitively.
func New(keywords ...string) *Detector {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return &Detector{keywords: lowered}
}

// Classify reports whether body looks like a block page. The first matching
// keyword becomes the reason.
func (d *Detector) Classify(body string) models.BlockVerdict {
	lower := strings.ToLower(body)
	for _, k := range d.keywords {
		if strings.Contains(lower, k) {
			return models.BlockVerdict{Blocked: true, Reason: k}
		}
	}
	return models.BlockVerdict{}
}

func (d *Detector) Keywords() []string {
	out := make([]string, len(d.keywords))
	copy(out, d.keywords)
	return out
}
