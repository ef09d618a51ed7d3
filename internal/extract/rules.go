package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/aliendevit/minuteone/internal/model"
	"github.com/aliendevit/minuteone/internal/ontology"
	"github.com/aliendevit/minuteone/internal/transcript"
)

// Deterministic English extraction patterns.
var (
	reCC      = regexp.MustCompile(`(?i)\b(chest pain|seizure|fever|shortness of breath|sob|abdominal pain|headache)\b`)
	reOnset   = regexp.MustCompile(`(?i)\b(?:since|for)\s+\d+\s*(?:min(?:ute)?s?|hrs?|hours?|days?|weeks?)\b`)
	reQuality = regexp.MustCompile(`(?i)\b(sharp|dull|pressure|burning|throbbing|stabbing|tight)\b`)
	reAssoc   = regexp.MustCompile(`(?i)\b(nausea|vomit(?:ing)?|diaphoresis|sweat(?:ing)?|dyspnea|palpitations|photophobia)\b`)
	reRedFlag = regexp.MustCompile(`(?i)\b(syncope|hemoptysis|hypotension|stemi|stroke|focal weakness)\b`)
	reMod     = regexp.MustCompile(`(?i)\b(worse with|better with|relieved by|exacerbated by)\s+([\w\s]+?)(?:[.;]|$)`)
	reExamCV  = regexp.MustCompile(`(?i)\b(regular rate and rhythm|murmur|tachycardia|bradycardia|normal s1 s2)\b`)
	reExamLng = regexp.MustCompile(`(?i)\b(clear to auscultation|wheez(?:es|ing)?|crackles|rales|rhonchi)\b`)
	rePreg    = regexp.MustCompile(`(?i)\b(pregnan(?:t|cy))\b`)
)

// ontologyTerms anchor the similarity signal for rule-extracted slots.
var ontologyTerms = map[string]string{
	"chief_complaint": "chief complaint presenting symptom",
	"hpi_onset":       "symptom onset duration",
	"hpi_quality":     "pain quality descriptor",
	"exam_cv":         "cardiovascular examination finding",
	"exam_lungs":      "pulmonary examination finding",
}

// RulesExtractor is the deterministic default extractor.
type RulesExtractor struct {
	ontology ontology.Provider
}

// NewRulesExtractor creates a rules extractor; a nil provider disables the
// ontology signal.
func NewRulesExtractor(p ontology.Provider) *RulesExtractor {
	return &RulesExtractor{ontology: p}
}

// Extract runs every pattern over every span. A regex match sets rule_hit to
// 1 for that slot and carries the span's transcriber confidence into c_asr;
// slots with no match stay absent rather than guessed.
func (e *RulesExtractor) Extract(ctx context.Context, spans []transcript.Span) (*Result, error) {
	res := &Result{
		Scores:   map[string]model.SlotScore{},
		SpanRefs: map[string][]string{},
	}
	visit := model.Visit{ExamBits: map[string]string{}}

	seenAssoc := map[string]bool{}
	seenRed := map[string]bool{}

	hit := func(slot string, span transcript.Span, term string) {
		sc := res.Scores[slot]
		sc.RuleHit = 1
		if span.Confidence > sc.CASR {
			sc.CASR = span.Confidence
		}
		if e.ontology != nil {
			if ref, ok := ontologyTerms[slot]; ok {
				if sim, err := e.ontology.Similarity(ctx, term, ref); err == nil && sim > sc.SOntology {
					sc.SOntology = sim
				}
			}
		}
		res.Scores[slot] = sc
		res.SpanRefs[slot] = append(res.SpanRefs[slot], span.ID)
	}

	for _, span := range spans {
		t := span.Text

		if m := reCC.FindString(t); m != "" && visit.ChiefComplaint == "" {
			visit.ChiefComplaint = strings.ToLower(m)
			hit("chief_complaint", span, m)
		}
		if m := reOnset.FindString(t); m != "" && visit.HPI.Onset == "" {
			visit.HPI.Onset = strings.ToLower(m)
			hit("hpi_onset", span, m)
		}
		if m := reQuality.FindString(t); m != "" && visit.HPI.Quality == "" {
			visit.HPI.Quality = strings.ToLower(m)
			hit("hpi_quality", span, m)
		}
		for _, m := range reAssoc.FindAllString(t, -1) {
			m = strings.ToLower(m)
			if !seenAssoc[m] {
				seenAssoc[m] = true
				visit.HPI.AssociatedSymptoms = append(visit.HPI.AssociatedSymptoms, m)
				hit("hpi_associated", span, m)
			}
		}
		for _, m := range reRedFlag.FindAllString(t, -1) {
			m = strings.ToLower(m)
			if !seenRed[m] {
				seenRed[m] = true
				visit.HPI.RedFlags = append(visit.HPI.RedFlags, m)
				visit.Risks = append(visit.Risks, m)
				hit("hpi_red_flags", span, m)
			}
		}
		for _, g := range reMod.FindAllStringSubmatch(t, -1) {
			visit.HPI.Modifiers = append(visit.HPI.Modifiers, strings.ToLower(strings.TrimSpace(g[0])))
			hit("hpi_modifiers", span, g[0])
		}
		if m := reExamCV.FindString(t); m != "" && visit.ExamBits["cv"] == "" {
			visit.ExamBits["cv"] = strings.ToLower(m)
			hit("exam_cv", span, m)
		}
		if m := reExamLng.FindString(t); m != "" && visit.ExamBits["lungs"] == "" {
			visit.ExamBits["lungs"] = strings.ToLower(m)
			hit("exam_lungs", span, m)
		}
		if m := rePreg.FindString(t); m != "" {
			risk := strings.ToLower(m)
			if !contains(visit.Risks, risk) {
				visit.Risks = append(visit.Risks, risk)
				hit("risk_pregnancy", span, m)
			}
		}
	}

	res.Visit = visit
	return res, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
