package store

import (
	"context"
	"errors"
	"testing"

	"github.com/aliendevit/minuteone/internal/apperr"
	"github.com/aliendevit/minuteone/internal/model"
)

func putTestChip(t *testing.T, s *SQLiteStore, state model.ChipState) *model.Chip {
	t.Helper()
	chip := &model.Chip{
		Slot:       "hpi_onset",
		Type:       model.ChipValue,
		Band:       model.BandSoft,
		Label:      "hpi onset",
		Proposed:   "since 2 hours",
		Confidence: 0.82,
		Risk:       model.RiskLow,
		Evidence:   []string{"f1"},
		Actions:    []model.ChipAction{model.ActionAccept, model.ActionDismiss},
		State:      state,
	}
	if err := s.PutChip(context.Background(), chip); err != nil {
		t.Fatalf("put chip: %v", err)
	}
	return chip
}

func TestPutAndGetChip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	chip := putTestChip(t, s, model.StateOpen)
	if chip.ChipID == "" {
		t.Fatal("expected generated chip id")
	}

	got, err := s.GetChip(ctx, chip.ChipID)
	if err != nil {
		t.Fatalf("get chip: %v", err)
	}
	if got.Proposed != "since 2 hours" || got.Band != model.BandSoft {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.Evidence) != 1 || got.Evidence[0] != "f1" {
		t.Errorf("evidence mismatch: %v", got.Evidence)
	}

	if _, err := s.GetChip(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTransitionWritesAudit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	chip := putTestChip(t, s, model.StateOpen)

	updated, err := s.TransitionChip(ctx, Transition{
		ChipID: chip.ChipID,
		From:   model.StateOpen,
		To:     model.StateOverridden,
		Action: "override",
		Reason: "patient reports onset yesterday",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.State != model.StateOverridden {
		t.Errorf("expected overridden, got %s", updated.State)
	}
	if updated.Reason != "patient reports onset yesterday" {
		t.Errorf("expected reason on chip, got %q", updated.Reason)
	}

	trail, err := s.AuditTrail(ctx, chip.ChipID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(trail))
	}
	rec := trail[0]
	if rec.ChipID != chip.ChipID || rec.BeforeState != model.StateOpen ||
		rec.AfterState != model.StateOverridden || rec.Reason == "" {
		t.Errorf("audit record incomplete: %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Error("expected audit timestamp")
	}
}

func TestTransitionNoteStaysOffChip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	chip := putTestChip(t, s, model.StateOpen)

	updated, err := s.TransitionChip(ctx, Transition{
		ChipID: chip.ChipID,
		From:   model.StateOpen,
		To:     model.StateDismissed,
		Action: "retention_dismiss",
		Note:   "cited evidence expired from cache",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.Reason != "" {
		t.Errorf("note must not land on the chip reason, got %q", updated.Reason)
	}

	trail, _ := s.AuditTrail(ctx, chip.ChipID)
	if len(trail) != 1 || trail[0].Reason != "cited evidence expired from cache" {
		t.Errorf("expected note in audit record, got %+v", trail)
	}
}

func TestTransitionConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	chip := putTestChip(t, s, model.StateOpen)

	first := Transition{ChipID: chip.ChipID, From: model.StateOpen, To: model.StateAccepted, Action: "accept"}
	if _, err := s.TransitionChip(ctx, first); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	// A second writer holding the stale before-state loses.
	_, err := s.TransitionChip(ctx, Transition{
		ChipID: chip.ChipID, From: model.StateOpen, To: model.StateDismissed, Action: "dismiss",
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// The losing attempt must leave no audit record behind.
	trail, _ := s.AuditTrail(ctx, chip.ChipID)
	if len(trail) != 1 {
		t.Errorf("expected 1 audit record, got %d", len(trail))
	}
}

func TestListChipsFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	putTestChip(t, s, model.StateOpen)
	putTestChip(t, s, model.StateOpen)
	accepted := putTestChip(t, s, model.StateAccepted)

	open, err := s.ListChips(ctx, ChipFilter{State: model.StateOpen})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("expected 2 open, got %d", len(open))
	}

	terminal, err := s.ListChips(ctx, ChipFilter{
		States: []model.ChipState{model.StateAccepted, model.StateDismissed},
	})
	if err != nil {
		t.Fatalf("list states: %v", err)
	}
	if len(terminal) != 1 || terminal[0].ChipID != accepted.ChipID {
		t.Errorf("expected only the accepted chip, got %v", terminal)
	}

	guards, err := s.ListChips(ctx, ChipFilter{Types: []model.ChipType{model.ChipGuard}})
	if err != nil {
		t.Fatalf("list types: %v", err)
	}
	if len(guards) != 0 {
		t.Errorf("expected no guard chips, got %d", len(guards))
	}
}
