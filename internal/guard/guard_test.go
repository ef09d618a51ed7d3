package guard

import (
	"context"
	"testing"
	"time"

	"github.com/aliendevit/minuteone/internal/model"
)

type fakeLookup struct {
	facts map[string]*model.Fact
}

func (f *fakeLookup) LookupLatest(_ context.Context, name string) (*model.Fact, error) {
	return f.facts[name], nil
}

func newEvaluator(facts map[string]*model.Fact) *Evaluator {
	return New(&fakeLookup{facts: facts})
}

func TestRequireAbsent(t *testing.T) {
	ev := newEvaluator(nil)
	rule := Rule{Name: RequireAbsent, Args: []string{"stemi", "hypotension"}}

	clean := model.Visit{ChiefComplaint: "chest pain"}
	if got := ev.Evaluate(context.Background(), []Rule{rule}, clean)[0]; got.Outcome != model.GuardPass {
		t.Errorf("expected pass, got %+v", got)
	}

	risky := model.Visit{ChiefComplaint: "chest pain", Risks: []string{"STEMI"}}
	got := ev.Evaluate(context.Background(), []Rule{rule}, risky)[0]
	if got.Outcome != model.GuardFail || got.ReasonCode != "risk_present" {
		t.Errorf("expected fail on risk, got %+v", got)
	}
}

func TestCheckAllergyUnknownFailsClosed(t *testing.T) {
	ev := newEvaluator(nil)
	rule := Rule{Name: CheckAllergy, Args: []string{"aspirin"}}

	// Nil allergies means status not on file; that is unknown, never pass.
	noData := model.Visit{ChiefComplaint: "chest pain"}
	got := ev.Evaluate(context.Background(), []Rule{rule}, noData)[0]
	if got.Outcome != model.GuardUnknown || got.ReasonCode != "no_allergy_data" {
		t.Errorf("expected unknown, got %+v", got)
	}
	if !got.Blocked() {
		t.Error("unknown must block")
	}

	// A known-empty list passes.
	known := model.Visit{ChiefComplaint: "chest pain", Allergies: []string{}}
	if got := ev.Evaluate(context.Background(), []Rule{rule}, known)[0]; got.Outcome != model.GuardPass {
		t.Errorf("expected pass for known-empty allergies, got %+v", got)
	}

	conflicted := model.Visit{ChiefComplaint: "chest pain", Allergies: []string{"Aspirin"}}
	got = ev.Evaluate(context.Background(), []Rule{rule}, conflicted)[0]
	if got.Outcome != model.GuardFail || got.ReasonCode != "allergy_conflict" {
		t.Errorf("expected fail on case-insensitive conflict, got %+v", got)
	}
}

func TestCheckRenal(t *testing.T) {
	visit := model.Visit{ChiefComplaint: "chest pain"}
	rule := Rule{Name: CheckRenal, Threshold: 2.0}

	// No creatinine on file: unknown.
	got := newEvaluator(nil).Evaluate(context.Background(), []Rule{rule}, visit)[0]
	if got.Outcome != model.GuardUnknown || got.ReasonCode != "no_renal_data" {
		t.Errorf("expected unknown, got %+v", got)
	}

	high := map[string]*model.Fact{
		"creatinine": {ID: "c1", Kind: model.KindLab, Name: "creatinine", Value: "2.4 mg/dL", Time: time.Now()},
	}
	got = newEvaluator(high).Evaluate(context.Background(), []Rule{rule}, visit)[0]
	if got.Outcome != model.GuardFail || got.ReasonCode != "renal_impairment" {
		t.Errorf("expected fail above threshold, got %+v", got)
	}

	normal := map[string]*model.Fact{
		"creatinine": {ID: "c2", Kind: model.KindLab, Name: "creatinine", Value: "1.1 mg/dL", Time: time.Now()},
	}
	if got := newEvaluator(normal).Evaluate(context.Background(), []Rule{rule}, visit)[0]; got.Outcome != model.GuardPass {
		t.Errorf("expected pass below threshold, got %+v", got)
	}

	garbled := map[string]*model.Fact{
		"creatinine": {ID: "c3", Kind: model.KindLab, Name: "creatinine", Value: "pending", Time: time.Now()},
	}
	got = newEvaluator(garbled).Evaluate(context.Background(), []Rule{rule}, visit)[0]
	if got.Outcome != model.GuardUnknown {
		t.Errorf("unparseable value must be unknown, got %+v", got)
	}
}

func TestCheckPregnancy(t *testing.T) {
	ev := newEvaluator(nil)
	rule := Rule{Name: CheckPregnancy}

	flagged := model.Visit{ChiefComplaint: "seizure", Risks: []string{"pregnancy"}}
	got := ev.Evaluate(context.Background(), []Rule{rule}, flagged)[0]
	if got.Outcome != model.GuardFail || got.ReasonCode != "pregnancy_unconfirmed" {
		t.Errorf("expected fail, got %+v", got)
	}

	confirmed := model.Visit{ChiefComplaint: "seizure", Risks: []string{"pregnancy"}, PregnancyConfirmed: true}
	if got := ev.Evaluate(context.Background(), []Rule{rule}, confirmed)[0]; got.Outcome != model.GuardPass {
		t.Errorf("expected pass when confirmed, got %+v", got)
	}

	unflagged := model.Visit{ChiefComplaint: "seizure"}
	if got := ev.Evaluate(context.Background(), []Rule{rule}, unflagged)[0]; got.Outcome != model.GuardPass {
		t.Errorf("expected pass with no pregnancy marker, got %+v", got)
	}
}

func TestCheckAnticoag(t *testing.T) {
	ev := newEvaluator(nil)
	rule := Rule{Name: CheckAnticoag, Args: []string{"heparin", "warfarin"}}

	planned := model.Visit{
		ChiefComplaint: "chest pain",
		PlanIntents:    []model.PlanIntent{{Type: model.IntentMedAdmin, Name: "heparin"}},
	}
	got := ev.Evaluate(context.Background(), []Rule{rule}, planned)[0]
	if got.Outcome != model.GuardFail || got.ReasonCode != "anticoag_conflict" {
		t.Errorf("expected fail, got %+v", got)
	}

	safe := model.Visit{
		ChiefComplaint: "chest pain",
		PlanIntents:    []model.PlanIntent{{Type: model.IntentMedAdmin, Name: "aspirin"}},
	}
	if got := ev.Evaluate(context.Background(), []Rule{rule}, safe)[0]; got.Outcome != model.GuardPass {
		t.Errorf("expected pass, got %+v", got)
	}
}

func TestUnknownGuardName(t *testing.T) {
	ev := newEvaluator(nil)
	got := ev.Evaluate(context.Background(), []Rule{{Name: "check_made_up"}}, model.Visit{ChiefComplaint: "x"})[0]
	if got.Outcome != model.GuardUnknown || got.ReasonCode != "unknown_guard" {
		t.Errorf("unrecognized guard must fail closed, got %+v", got)
	}
}

func TestEvaluateOrder(t *testing.T) {
	ev := newEvaluator(nil)
	rules := []Rule{
		{Name: CheckPregnancy},
		{Name: RequireAbsent, Args: []string{"stemi"}},
	}
	results := ev.Evaluate(context.Background(), rules, model.Visit{ChiefComplaint: "x"})
	if len(results) != 2 {
		t.Fatalf("expected one result per rule, got %d", len(results))
	}
	if results[0].Guard != CheckPregnancy || results[1].Guard != RequireAbsent {
		t.Errorf("results out of order: %+v", results)
	}
}
