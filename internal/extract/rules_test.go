package extract

import (
	"context"
	"testing"

	"github.com/aliendevit/minuteone/internal/ontology"
	"github.com/aliendevit/minuteone/internal/transcript"
)

func extractText(t *testing.T, text string, conf float64) *Result {
	t.Helper()
	spans := transcript.Split(text, transcript.Options{TargetSize: 240, MaxSize: 400, Confidence: conf})
	e := NewRulesExtractor(ontology.NewLexicalProvider())
	res, err := e.Extract(context.Background(), spans)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return res
}

func TestExtractChestPain(t *testing.T) {
	res := extractText(t,
		"Patient with chest pain since 2 hours. Pain is sharp, worse with exertion. Reports nausea and diaphoresis. Lungs clear to auscultation.",
		0.92)

	v := res.Visit
	if v.ChiefComplaint != "chest pain" {
		t.Errorf("chief complaint: %q", v.ChiefComplaint)
	}
	if v.HPI.Onset != "since 2 hours" {
		t.Errorf("onset: %q", v.HPI.Onset)
	}
	if v.HPI.Quality != "sharp" {
		t.Errorf("quality: %q", v.HPI.Quality)
	}
	if len(v.HPI.AssociatedSymptoms) != 2 {
		t.Errorf("associated: %v", v.HPI.AssociatedSymptoms)
	}
	if v.ExamBits["lungs"] != "clear to auscultation" {
		t.Errorf("lungs: %q", v.ExamBits["lungs"])
	}

	cc := res.Scores["chief_complaint"]
	if cc.RuleHit != 1 {
		t.Errorf("expected rule_hit 1, got %v", cc.RuleHit)
	}
	if cc.CASR != 0.92 {
		t.Errorf("expected c_asr from span, got %v", cc.CASR)
	}
	if len(res.SpanRefs["chief_complaint"]) == 0 {
		t.Error("expected span refs for chief complaint")
	}
}

func TestExtractRedFlagsBecomeRisks(t *testing.T) {
	res := extractText(t, "Chest pain with syncope on arrival.", 1)

	if len(res.Visit.HPI.RedFlags) != 1 || res.Visit.HPI.RedFlags[0] != "syncope" {
		t.Errorf("red flags: %v", res.Visit.HPI.RedFlags)
	}
	found := false
	for _, r := range res.Visit.Risks {
		if r == "syncope" {
			found = true
		}
	}
	if !found {
		t.Errorf("red flag must also be a risk: %v", res.Visit.Risks)
	}
}

func TestExtractPregnancyRisk(t *testing.T) {
	res := extractText(t, "Seizure in a patient who is pregnant.", 1)
	found := false
	for _, r := range res.Visit.Risks {
		if r == "pregnant" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected pregnancy risk marker, got %v", res.Visit.Risks)
	}
}

func TestExtractAbsentSlotsStayAbsent(t *testing.T) {
	res := extractText(t, "Patient presents with headache.", 1)

	if res.Visit.HPI.Onset != "" {
		t.Errorf("onset must stay absent, got %q", res.Visit.HPI.Onset)
	}
	if _, ok := res.Scores["hpi_onset"]; ok {
		t.Error("no score entry for an unmatched slot")
	}
	if res.Visit.ChiefComplaint != "headache" {
		t.Errorf("chief complaint: %q", res.Visit.ChiefComplaint)
	}
}

func TestExtractNilOntology(t *testing.T) {
	spans := transcript.Split("Chest pain, sharp.", transcript.DefaultOptions())
	e := NewRulesExtractor(nil)
	res, err := e.Extract(context.Background(), spans)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Scores["chief_complaint"].SOntology != 0 {
		t.Errorf("nil provider must leave s_ontology at 0, got %v", res.Scores["chief_complaint"].SOntology)
	}
}
