// Package transcript splits transcript text into ordered spans that carry
// offsets, so extraction output and chips can cite the exact utterance they
// came from.
package transcript

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	DefaultTargetSize = 240
	DefaultMaxSize    = 400
)

// Options configures span splitting.
type Options struct {
	TargetSize int
	MaxSize    int
	// Confidence is attached to every produced span when the upstream
	// transcriber did not supply per-span scores.
	Confidence float64
}

// DefaultOptions returns default splitting options.
func DefaultOptions() Options {
	return Options{TargetSize: DefaultTargetSize, MaxSize: DefaultMaxSize, Confidence: 1.0}
}

// Span is one citable slice of the transcript.
type Span struct {
	ID         string  `json:"id"`
	Seq        int     `json:"seq"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Split breaks text into spans on utterance boundaries (sentence enders and
// newlines), merging short fragments toward the target size and hard
// splitting anything over the maximum. Empty input returns nil.
func Split(text string, opts Options) []Span {
	if opts.TargetSize == 0 {
		opts = DefaultOptions()
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	type piece struct {
		start int
		text  string
	}
	var pieces []piece
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '.' || c == '?' || c == '!' || c == '\n' {
			seg := text[start : i+1]
			if strings.TrimSpace(seg) != "" {
				pieces = append(pieces, piece{start: start, text: seg})
			}
			start = i + 1
		}
	}
	if start < len(text) && strings.TrimSpace(text[start:]) != "" {
		pieces = append(pieces, piece{start: start, text: text[start:]})
	}

	// Merge short neighbouring utterances toward the target size.
	var spans []Span
	cur := piece{start: -1}
	flush := func() {
		if cur.start < 0 {
			return
		}
		trimmed := strings.TrimFunc(cur.text, unicode.IsSpace)
		if trimmed == "" {
			cur = piece{start: -1}
			return
		}
		offset := strings.Index(cur.text, trimmed)
		for len(trimmed) > opts.MaxSize {
			cut := opts.MaxSize
			if idx := strings.LastIndex(trimmed[:cut], " "); idx > 0 {
				cut = idx
			}
			spans = append(spans, newSpan(len(spans), cur.start+offset, trimmed[:cut], opts))
			offset += cut
			trimmed = strings.TrimLeft(trimmed[cut:], " ")
		}
		spans = append(spans, newSpan(len(spans), cur.start+offset, trimmed, opts))
		cur = piece{start: -1}
	}
	for _, p := range pieces {
		if cur.start < 0 {
			cur = p
			continue
		}
		if len(cur.text)+len(p.text) <= opts.TargetSize {
			cur.text += p.text
			continue
		}
		flush()
		cur = p
	}
	flush()

	return spans
}

func newSpan(seq, start int, text string, opts Options) Span {
	return Span{
		ID:         fmt.Sprintf("span-%04d", seq+1),
		Seq:        seq,
		Start:      start,
		End:        start + len(text),
		Text:       text,
		Confidence: opts.Confidence,
	}
}

// Join reassembles span text, for callers that need the full utterance.
func Join(spans []Span) string {
	parts := make([]string, len(spans))
	for i, s := range spans {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}
