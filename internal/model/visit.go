package model

import "fmt"

// PlanIntentType classifies a planned action extracted from the visit.
type PlanIntentType string

const (
	IntentLabSeries PlanIntentType = "lab_series"
	IntentTest      PlanIntentType = "test"
	IntentMedAdmin  PlanIntentType = "med_admin"
	IntentEducation PlanIntentType = "education"
)

// PlanIntent is a planned action; it is never executed by this system.
type PlanIntent struct {
	Type     PlanIntentType `json:"type"`
	Name     string         `json:"name"`
	Dose     string         `json:"dose,omitempty"`
	Schedule []string       `json:"schedule,omitempty"`
}

// HPI holds the history-of-present-illness fields.
type HPI struct {
	Onset              string   `json:"onset,omitempty"`
	Quality            string   `json:"quality,omitempty"`
	Modifiers          []string `json:"modifiers,omitempty"`
	AssociatedSymptoms []string `json:"associated_symptoms,omitempty"`
	RedFlags           []string `json:"red_flags,omitempty"`
}

// Visit is the structured visit record produced by the extraction
// collaborator. Allergies is nil when allergy status is unknown, which is
// distinct from a known-empty list; guards fail closed on nil.
type Visit struct {
	ChiefComplaint     string            `json:"chief_complaint"`
	HPI                HPI               `json:"hpi"`
	ExamBits           map[string]string `json:"exam_bits,omitempty"`
	Risks              []string          `json:"risks,omitempty"`
	PlanIntents        []PlanIntent      `json:"plan_intents,omitempty"`
	Allergies          []string          `json:"allergies"`
	PregnancyConfirmed bool              `json:"pregnancy_confirmed,omitempty"`
	LanguagePref       string            `json:"language_pref,omitempty"`
}

// Validate checks the fields required for downstream guard evaluation.
func (v Visit) Validate() error {
	if v.ChiefComplaint == "" {
		return fmt.Errorf("visit missing chief_complaint")
	}
	for _, intent := range v.PlanIntents {
		if intent.Name == "" {
			return fmt.Errorf("plan intent missing name")
		}
	}
	return nil
}
