// Package delta computes directional change between repeated observations.
package delta

import (
	"context"
	"regexp"
	"strconv"

	"github.com/aliendevit/minuteone/internal/model"
)

// Lookup is the slice of the fact store the engine depends on.
type Lookup interface {
	LookupSeries(ctx context.Context, name string) ([]model.Fact, error)
}

// Engine derives deltas on read; nothing is stored.
type Engine struct {
	lookup Lookup
}

// New creates a delta engine over a fact lookup.
func New(lookup Lookup) *Engine {
	return &Engine{lookup: lookup}
}

// Compute returns the delta between the two most recent facts sharing the
// name. Fewer than two observations yields unchanged with no magnitude,
// never an error. Identical timestamps break toward the larger id, which
// the store's series ordering already guarantees.
func (e *Engine) Compute(ctx context.Context, name string) (model.Delta, error) {
	series, err := e.lookup.LookupSeries(ctx, name)
	if err != nil {
		return model.Delta{}, err
	}
	return FromSeries(name, series), nil
}

// FromSeries computes the delta over an already-fetched chronological series.
func FromSeries(name string, series []model.Fact) model.Delta {
	d := model.Delta{Name: name, Direction: model.DirUnchanged, Samples: len(series)}
	if len(series) < 2 {
		return d
	}

	current := series[len(series)-1]
	previous := series[len(series)-2]

	cur, okCur := ParseNumeric(current.Value)
	prev, okPrev := ParseNumeric(previous.Value)
	if !okCur || !okPrev {
		return d
	}

	mag := cur - prev
	switch {
	case mag > 0:
		d.Direction = model.DirUp
	case mag < 0:
		d.Direction = model.DirDown
		mag = -mag
	}
	d.Magnitude = &mag
	return d
}

var numericRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ParseNumeric extracts the first number from a value string, tolerating
// unit suffixes like "0.04 ng/mL".
func ParseNumeric(value string) (float64, bool) {
	m := numericRe.FindString(value)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
