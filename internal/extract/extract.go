// Package extract turns transcript spans into a structured visit record with
// per-slot confidence signals. Two implementations exist behind one
// interface so the confidence engine never needs to know which produced a
// signal: deterministic rules (default) and a model-backed fallback.
package extract

import (
	"context"

	"github.com/aliendevit/minuteone/internal/model"
	"github.com/aliendevit/minuteone/internal/transcript"
)

// Result is the extraction output: the visit record, per-slot signals, and
// the span ids each slot was extracted from.
type Result struct {
	Visit    model.Visit                `json:"visit"`
	Scores   map[string]model.SlotScore `json:"slot_scores"`
	SpanRefs map[string][]string        `json:"span_refs,omitempty"`
}

// Extractor produces a structured visit from transcript spans.
type Extractor interface {
	Extract(ctx context.Context, spans []transcript.Span) (*Result, error)
}
