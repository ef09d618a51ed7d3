package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aliendevit/minuteone/internal/apperr"
	"github.com/aliendevit/minuteone/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fact(id, name, value string, at time.Time) model.Fact {
	return model.Fact{ID: id, Kind: model.KindLab, Name: name, Value: value, Time: at}
}

func TestIngestAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	n, err := s.IngestFacts(ctx, []model.Fact{
		fact("f1", "troponin", "0.04 ng/mL", now.Add(-2*time.Hour)),
		fact("f2", "troponin", "0.32 ng/mL", now.Add(-1*time.Hour)),
		{ID: "f3", Kind: model.KindVital, Name: "hr", Value: "88", Time: now},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 written, got %d", n)
	}

	facts, err := s.QueryFacts(ctx, QueryParams{Window: 24 * time.Hour})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(facts))
	}
	// Newest first.
	if facts[0].ID != "f3" {
		t.Errorf("expected f3 first, got %s", facts[0].ID)
	}

	vitals, err := s.QueryFacts(ctx, QueryParams{Window: 24 * time.Hour, Kinds: []model.FactKind{model.KindVital}})
	if err != nil {
		t.Fatalf("query kinds: %v", err)
	}
	if len(vitals) != 1 || vitals[0].ID != "f3" {
		t.Fatalf("expected only f3, got %v", vitals)
	}
}

func TestIngestValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.IngestFacts(ctx, []model.Fact{
		fact("ok", "troponin", "0.04", time.Now()),
		{Kind: "bogus", Name: "x", Time: time.Now()},
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Atomic: the valid fact must not have landed.
	facts, _ := s.QueryFacts(ctx, QueryParams{Window: time.Hour})
	if len(facts) != 0 {
		t.Errorf("expected empty store after rejected batch, got %d facts", len(facts))
	}
}

func TestIngestIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	batch := []model.Fact{fact("f1", "troponin", "0.04 ng/mL", now)}
	if _, err := s.IngestFacts(ctx, batch); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := s.IngestFacts(ctx, batch); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	facts, _ := s.QueryFacts(ctx, QueryParams{Window: time.Hour})
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact after re-ingest, got %d", len(facts))
	}

	// The index must not hold a stale duplicate either.
	hits, err := s.QueryFacts(ctx, QueryParams{Text: "troponin"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 search hit after re-ingest, got %d", len(hits))
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	s.IngestFacts(ctx, []model.Fact{
		fact("f1", "troponin", "0.04 ng/mL", now),
		fact("f2", "creatinine", "1.1 mg/dL", now),
	})

	hits, err := s.QueryFacts(ctx, QueryParams{Text: "creatinine"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "f2" {
		t.Fatalf("expected f2, got %v", hits)
	}

	none, err := s.QueryFacts(ctx, QueryParams{Text: "lipase"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no hits, got %d", len(none))
	}
}

func TestLookupLatestAndSeries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	s.IngestFacts(ctx, []model.Fact{
		fact("a1", "troponin", "0.04", now.Add(-2*time.Hour)),
		fact("a2", "troponin", "0.32", now.Add(-1*time.Hour)),
		// Same timestamp as a2; the larger id wins.
		fact("a3", "troponin", "0.35", now.Add(-1*time.Hour)),
	})

	latest, err := s.LookupLatest(ctx, "troponin")
	if err != nil {
		t.Fatalf("lookup latest: %v", err)
	}
	if latest.ID != "a3" {
		t.Errorf("expected a3 latest, got %s", latest.ID)
	}

	missing, err := s.LookupLatest(ctx, "lipase")
	if err != nil {
		t.Fatalf("lookup missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown name, got %v", missing)
	}

	series, err := s.LookupSeries(ctx, "troponin")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3, got %d", len(series))
	}
	if series[0].ID != "a1" || series[2].ID != "a3" {
		t.Errorf("series out of order: %v", []string{series[0].ID, series[1].ID, series[2].ID})
	}
}

func TestContextGrouping(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	s.IngestFacts(ctx, []model.Fact{
		fact("f1", "troponin", "0.04", now),
		{ID: "f2", Kind: model.KindVital, Name: "hr", Value: "88", Time: now},
		// Outside the window.
		fact("old", "troponin", "0.01", now.Add(-100*time.Hour)),
	})

	grouped, err := s.Context(ctx, 72*time.Hour)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(grouped[model.KindLab]) != 1 {
		t.Errorf("expected 1 lab, got %d", len(grouped[model.KindLab]))
	}
	if len(grouped[model.KindVital]) != 1 {
		t.Errorf("expected 1 vital, got %d", len(grouped[model.KindVital]))
	}
	if len(grouped[model.KindMed]) != 0 {
		t.Errorf("expected empty meds, got %d", len(grouped[model.KindMed]))
	}
}

func TestRetentionDeletion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	s.IngestFacts(ctx, []model.Fact{
		fact("old", "troponin", "0.01", now.Add(-10*24*time.Hour)),
		fact("new", "troponin", "0.04", now),
	})

	cutoff := now.Add(-7 * 24 * time.Hour)
	expiring, err := s.FactsBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("facts before: %v", err)
	}
	if len(expiring) != 1 || expiring[0].ID != "old" {
		t.Fatalf("expected old, got %v", expiring)
	}

	removed, err := s.DeleteFactsBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	// The expired fact must be gone from search too.
	hits, _ := s.QueryFacts(ctx, QueryParams{Text: "troponin"})
	if len(hits) != 1 || hits[0].ID != "new" {
		t.Errorf("expected only new in index, got %v", hits)
	}
}
