// Package score combines per-slot signals into a confidence value and band.
package score

import "github.com/aliendevit/minuteone/internal/model"

// Weights are the signal weights of the confidence formula.
type Weights struct {
	RuleHit  float64 `mapstructure:"rule_hit"`
	Model    float64 `mapstructure:"p_model"`
	ASR      float64 `mapstructure:"asr"`
	Ontology float64 `mapstructure:"ontology"`
	Context  float64 `mapstructure:"context"`
}

// Thresholds are the lower bounds of bands A, B and C. Anything below
// MustConfirm lands in D.
type Thresholds struct {
	AutoAccept  float64 `mapstructure:"auto_accept"`
	SoftConfirm float64 `mapstructure:"soft_confirm"`
	MustConfirm float64 `mapstructure:"must_confirm"`
}

// RiskBumps are added to the confidence before banding.
type RiskBumps struct {
	High   float64 `mapstructure:"high"`
	Medium float64 `mapstructure:"medium"`
}

// DefaultWeights returns the calibrated signal weights.
func DefaultWeights() Weights {
	return Weights{RuleHit: 0.35, Model: 0.25, ASR: 0.15, Ontology: 0.10, Context: 0.15}
}

// DefaultThresholds returns the calibrated band boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoAccept: 0.90, SoftConfirm: 0.70, MustConfirm: 0.45}
}

// DefaultRiskBumps returns the calibrated risk bumps.
func DefaultRiskBumps() RiskBumps {
	return RiskBumps{High: 0.05, Medium: 0.03}
}

// Scorer is a deterministic confidence/banding engine: identical inputs
// always produce the identical band. It holds no mutable state.
type Scorer struct {
	weights    Weights
	thresholds Thresholds
	bumps      RiskBumps
}

// New creates a scorer with explicit calibration.
func New(w Weights, t Thresholds, b RiskBumps) *Scorer {
	return &Scorer{weights: w, thresholds: t, bumps: b}
}

// NewDefault creates a scorer with the default calibration.
func NewDefault() *Scorer {
	return New(DefaultWeights(), DefaultThresholds(), DefaultRiskBumps())
}

// Confidence computes the weighted signal sum plus the risk bump, clamped to
// [0,1]. Absent signals are zero-valued and contribute nothing. The result
// is deliberately not rounded so band boundaries stay exact.
func (s *Scorer) Confidence(sig model.SlotScore, risk model.Risk) float64 {
	c := sig.RuleHit*s.weights.RuleHit +
		sig.PModel*s.weights.Model +
		sig.CASR*s.weights.ASR +
		sig.SOntology*s.weights.Ontology +
		sig.SContext*s.weights.Context

	switch risk {
	case model.RiskHigh:
		c += s.bumps.High
	case model.RiskMedium:
		c += s.bumps.Medium
	}

	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

// Band maps a confidence to its tier. Any failing or unknown guard forces D
// regardless of the numeric score: a high-confidence suggestion that
// conflicts with a safety guard must never auto-proceed.
func (s *Scorer) Band(confidence float64, guards []model.GuardResult) model.Band {
	if model.AnyBlocked(guards) {
		return model.BandBlocked
	}
	switch {
	case confidence >= s.thresholds.AutoAccept:
		return model.BandAuto
	case confidence >= s.thresholds.SoftConfirm:
		return model.BandSoft
	case confidence >= s.thresholds.MustConfirm:
		return model.BandMust
	default:
		return model.BandBlocked
	}
}

// Score computes confidence and band in one step.
func (s *Scorer) Score(sig model.SlotScore, risk model.Risk, guards []model.GuardResult) (float64, model.Band) {
	c := s.Confidence(sig, risk)
	return c, s.Band(c, guards)
}

// ActionsFor returns the advisory action list for a chip in the given band.
// The lifecycle manager, not this list, is the enforcement point.
func ActionsFor(band model.Band, chipType model.ChipType) []model.ChipAction {
	switch band {
	case model.BandAuto:
		return []model.ChipAction{model.ActionAccept, model.ActionDismiss}
	case model.BandSoft:
		return []model.ChipAction{model.ActionAccept, model.ActionEvidence, model.ActionDismiss}
	case model.BandMust:
		return []model.ChipAction{model.ActionAccept, model.ActionEdit, model.ActionEvidence, model.ActionDismiss}
	default:
		if chipType == model.ChipGuard {
			return []model.ChipAction{model.ActionOverride, model.ActionEvidence, model.ActionDismiss}
		}
		return []model.ChipAction{model.ActionEdit, model.ActionOverride, model.ActionEvidence, model.ActionDismiss}
	}
}
