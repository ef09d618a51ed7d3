// Package guard evaluates safety predicates over a visit record and the
// fact store. Guards are pure functions of their inputs; an unknown outcome
// fails closed and blocks exactly like a fail.
package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/aliendevit/minuteone/internal/delta"
	"github.com/aliendevit/minuteone/internal/model"
)

// Guard names in the fixed catalogue. New guards arrive via plan pack
// configuration, not code.
const (
	RequireAbsent  = "require_absent"
	CheckAllergy   = "check_allergy"
	CheckRenal     = "check_renal"
	CheckPregnancy = "check_pregnancy"
	CheckAnticoag  = "check_anticoag"
)

// Rule is one configured guard invocation.
type Rule struct {
	Name      string   `yaml:"name"`
	Args      []string `yaml:"args,omitempty"`
	Threshold float64  `yaml:"threshold,omitempty"`
}

// Lookup is the slice of the fact store guards may consult.
type Lookup interface {
	LookupLatest(ctx context.Context, name string) (*model.Fact, error)
}

// Evaluator runs configured guard rules against a visit.
type Evaluator struct {
	lookup Lookup
	// RenalDefault is the creatinine ceiling used when a rule does not set
	// its own threshold.
	RenalDefault float64
}

// New creates an evaluator over a fact lookup.
func New(lookup Lookup) *Evaluator {
	return &Evaluator{lookup: lookup, RenalDefault: 2.0}
}

// Evaluate runs every rule and returns one result per rule, in order.
func (e *Evaluator) Evaluate(ctx context.Context, rules []Rule, visit model.Visit) []model.GuardResult {
	results := make([]model.GuardResult, 0, len(rules))
	for _, r := range rules {
		results = append(results, e.evaluate(ctx, r, visit))
	}
	return results
}

func (e *Evaluator) evaluate(ctx context.Context, r Rule, visit model.Visit) model.GuardResult {
	switch r.Name {
	case RequireAbsent:
		return requireAbsent(r, visit)
	case CheckAllergy:
		return checkAllergy(r, visit)
	case CheckRenal:
		return e.checkRenal(ctx, r)
	case CheckPregnancy:
		return checkPregnancy(visit)
	case CheckAnticoag:
		return checkAnticoag(r, visit)
	default:
		return model.GuardResult{
			Guard:      r.Name,
			Outcome:    model.GuardUnknown,
			ReasonCode: "unknown_guard",
		}
	}
}

// requireAbsent fails when the visit's risk list intersects the prohibited
// list.
func requireAbsent(r Rule, visit model.Visit) model.GuardResult {
	conflicts := intersect(visit.Risks, r.Args)
	if len(conflicts) > 0 {
		return model.GuardResult{
			Guard:      RequireAbsent,
			Outcome:    model.GuardFail,
			ReasonCode: "risk_present",
			Detail:     strings.Join(conflicts, ", "),
		}
	}
	return model.GuardResult{Guard: RequireAbsent, Outcome: model.GuardPass}
}

// checkAllergy fails on an allergy conflict. A nil allergy list means
// allergy status is not on file, which is unknown, never pass.
func checkAllergy(r Rule, visit model.Visit) model.GuardResult {
	if visit.Allergies == nil {
		return model.GuardResult{
			Guard:      CheckAllergy,
			Outcome:    model.GuardUnknown,
			ReasonCode: "no_allergy_data",
		}
	}
	conflicts := intersect(visit.Allergies, r.Args)
	if len(conflicts) > 0 {
		return model.GuardResult{
			Guard:      CheckAllergy,
			Outcome:    model.GuardFail,
			ReasonCode: "allergy_conflict",
			Detail:     strings.Join(conflicts, ", "),
		}
	}
	return model.GuardResult{Guard: CheckAllergy, Outcome: model.GuardPass}
}

// checkRenal fails when the latest creatinine exceeds the threshold. With no
// renal fact on file the outcome is unknown.
func (e *Evaluator) checkRenal(ctx context.Context, r Rule) model.GuardResult {
	threshold := r.Threshold
	if threshold == 0 {
		threshold = e.RenalDefault
	}
	fact, err := e.lookup.LookupLatest(ctx, "creatinine")
	if err != nil || fact == nil {
		return model.GuardResult{
			Guard:      CheckRenal,
			Outcome:    model.GuardUnknown,
			ReasonCode: "no_renal_data",
		}
	}
	value, ok := delta.ParseNumeric(fact.Value)
	if !ok {
		return model.GuardResult{
			Guard:      CheckRenal,
			Outcome:    model.GuardUnknown,
			ReasonCode: "unparseable_renal_value",
			Detail:     fact.Value,
		}
	}
	if value > threshold {
		return model.GuardResult{
			Guard:      CheckRenal,
			Outcome:    model.GuardFail,
			ReasonCode: "renal_impairment",
			Detail:     fmt.Sprintf("creatinine %.2f > %.2f", value, threshold),
		}
	}
	return model.GuardResult{Guard: CheckRenal, Outcome: model.GuardPass}
}

// checkPregnancy fails when a pregnancy-related risk marker is present and
// no clinician confirmation flag is set.
func checkPregnancy(visit model.Visit) model.GuardResult {
	for _, risk := range visit.Risks {
		if strings.Contains(strings.ToLower(risk), "pregnan") && !visit.PregnancyConfirmed {
			return model.GuardResult{
				Guard:      CheckPregnancy,
				Outcome:    model.GuardFail,
				ReasonCode: "pregnancy_unconfirmed",
				Detail:     risk,
			}
		}
	}
	return model.GuardResult{Guard: CheckPregnancy, Outcome: model.GuardPass}
}

// checkAnticoag fails when a planned intent overlaps the conflict list.
func checkAnticoag(r Rule, visit model.Visit) model.GuardResult {
	var planned []string
	for _, intent := range visit.PlanIntents {
		planned = append(planned, intent.Name)
	}
	conflicts := intersect(planned, r.Args)
	if len(conflicts) > 0 {
		return model.GuardResult{
			Guard:      CheckAnticoag,
			Outcome:    model.GuardFail,
			ReasonCode: "anticoag_conflict",
			Detail:     strings.Join(conflicts, ", "),
		}
	}
	return model.GuardResult{Guard: CheckAnticoag, Outcome: model.GuardPass}
}

func intersect(have, prohibited []string) []string {
	set := make(map[string]bool, len(prohibited))
	for _, p := range prohibited {
		set[strings.ToLower(strings.TrimSpace(p))] = true
	}
	var out []string
	for _, h := range have {
		if set[strings.ToLower(strings.TrimSpace(h))] {
			out = append(out, h)
		}
	}
	return out
}
