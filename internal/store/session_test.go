package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aliendevit/minuteone/internal/model"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.StartSession(ctx, "visit-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Starting again is a no-op, not an error.
	if err := s.StartSession(ctx, "visit-1"); err != nil {
		t.Fatalf("restart: %v", err)
	}

	if err := s.AddKeystrokes(ctx, "visit-1", 42); err != nil {
		t.Fatalf("keystrokes: %v", err)
	}
	if err := s.AddTimer(ctx, "visit-1", "note_compose", 1500*time.Millisecond); err != nil {
		t.Fatalf("timer: %v", err)
	}
	if err := s.AddTimer(ctx, "visit-1", "note_compose", 500*time.Millisecond); err != nil {
		t.Fatalf("timer: %v", err)
	}
	if err := s.AddChipCount(ctx, "visit-1", model.BandSoft, 2); err != nil {
		t.Fatalf("chip count: %v", err)
	}

	sess, err := s.SessionSnapshot(ctx, "visit-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if sess.Keystrokes != 42 {
		t.Errorf("expected 42 keystrokes, got %d", sess.Keystrokes)
	}
	if sess.Timers["note_compose"] != 2000 {
		t.Errorf("expected 2000ms accumulated, got %d", sess.Timers["note_compose"])
	}
	if sess.ChipCounts[model.BandSoft] != 2 {
		t.Errorf("expected 2 band-B chips, got %d", sess.ChipCounts[model.BandSoft])
	}
}

func TestSessionUpdatesForUnknownSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.AddTimer(ctx, "nope", "note_compose", time.Second); err == nil {
		t.Error("expected error for unknown session timer")
	}
	if err := s.AddChipCount(ctx, "nope", model.BandSoft, 1); err == nil {
		t.Error("expected error for unknown session chip count")
	}
}

func TestConcurrentSessionUpdatesLoseNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.StartSession(ctx, "visit-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.AddTimer(ctx, "visit-1", "note_compose", 5*time.Millisecond); err != nil {
				t.Errorf("timer: %v", err)
			}
			if err := s.AddChipCount(ctx, "visit-1", model.BandSoft, 1); err != nil {
				t.Errorf("chip count: %v", err)
			}
		}()
	}
	wg.Wait()

	sess, err := s.SessionSnapshot(ctx, "visit-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if sess.Timers["note_compose"] != workers*5 {
		t.Errorf("expected %dms accumulated, got %d", workers*5, sess.Timers["note_compose"])
	}
	if sess.ChipCounts[model.BandSoft] != workers {
		t.Errorf("expected %d band-B chips, got %d", workers, sess.ChipCounts[model.BandSoft])
	}
}

func TestKVCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, ok, _ := s.KVGet(ctx, "missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	if err := s.KVSet(ctx, "last_pathway", "chest_pain"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.KVGet(ctx, "last_pathway")
	if err != nil || !ok || v != "chest_pain" {
		t.Fatalf("get: %v %v %q", err, ok, v)
	}

	if err := s.KVSet(ctx, "last_pathway", "seizure_peds"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, _, _ = s.KVGet(ctx, "last_pathway")
	if v != "seizure_peds" {
		t.Errorf("expected overwrite, got %q", v)
	}
}
