package transcript

import (
	"strings"
	"testing"
)

func TestSplitEmpty(t *testing.T) {
	if spans := Split("", DefaultOptions()); spans != nil {
		t.Errorf("expected nil for empty input, got %v", spans)
	}
	if spans := Split("   \n  ", DefaultOptions()); spans != nil {
		t.Errorf("expected nil for whitespace input, got %v", spans)
	}
}

func TestSplitSentences(t *testing.T) {
	text := "Patient reports chest pain since 2 hours. Pain is sharp. Denies nausea."
	spans := Split(text, Options{TargetSize: 20, MaxSize: 400, Confidence: 0.9})

	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d: %+v", len(spans), spans)
	}
	for i, s := range spans {
		if s.Seq != i {
			t.Errorf("span %d has seq %d", i, s.Seq)
		}
		if s.Confidence != 0.9 {
			t.Errorf("span %d confidence %v", i, s.Confidence)
		}
		if s.ID == "" {
			t.Errorf("span %d missing id", i)
		}
	}
	if !strings.Contains(spans[0].Text, "chest pain") {
		t.Errorf("unexpected first span: %q", spans[0].Text)
	}
}

func TestSplitOffsets(t *testing.T) {
	text := "First sentence here. Second sentence follows."
	spans := Split(text, Options{TargetSize: 10, MaxSize: 400, Confidence: 1})
	for _, s := range spans {
		if got := text[s.Start:s.End]; got != s.Text {
			t.Errorf("offset mismatch: span text %q, slice %q", s.Text, got)
		}
	}
}

func TestSplitMergesShortFragments(t *testing.T) {
	text := "Yes. No. Maybe. Okay."
	spans := Split(text, Options{TargetSize: 100, MaxSize: 400, Confidence: 1})
	if len(spans) != 1 {
		t.Fatalf("expected fragments merged into 1 span, got %d", len(spans))
	}
}

func TestSplitHardLimit(t *testing.T) {
	long := strings.Repeat("word ", 200) // no sentence enders
	spans := Split(long, Options{TargetSize: 240, MaxSize: 400, Confidence: 1})
	if len(spans) < 2 {
		t.Fatalf("expected hard split, got %d spans", len(spans))
	}
	for i, s := range spans {
		if len(s.Text) > 400 {
			t.Errorf("span %d exceeds max size: %d", i, len(s.Text))
		}
	}
}

func TestJoin(t *testing.T) {
	spans := Split("One. Two. Three.", Options{TargetSize: 4, MaxSize: 400, Confidence: 1})
	joined := Join(spans)
	for _, w := range []string{"One", "Two", "Three"} {
		if !strings.Contains(joined, w) {
			t.Errorf("join lost %q: %q", w, joined)
		}
	}
}
