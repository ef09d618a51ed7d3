// Package model defines the core clinical data types shared across services.
package model

import (
	"fmt"
	"strings"
	"time"
)

// FactKind classifies a chart fact.
type FactKind string

const (
	KindLab   FactKind = "lab"
	KindVital FactKind = "vital"
	KindMed   FactKind = "med"
	KindNote  FactKind = "note"
	KindImage FactKind = "image"
)

// ValidFactKinds are the allowed fact kinds.
var ValidFactKinds = map[FactKind]bool{
	KindLab:   true,
	KindVital: true,
	KindMed:   true,
	KindNote:  true,
	KindImage: true,
}

// Fact is an atomic, immutable clinical observation. Repeated observations of
// the same name coexist as separate rows ordered by time; they are never
// overwritten in place.
type Fact struct {
	ID       string    `json:"id"`
	Kind     FactKind  `json:"kind"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Time     time.Time `json:"time"`
	SourceID string    `json:"source_id,omitempty"`
}

// Validate reports the first missing required field.
func (f Fact) Validate() error {
	if f.Kind == "" {
		return fmt.Errorf("fact missing kind")
	}
	if !ValidFactKinds[f.Kind] {
		return fmt.Errorf("unknown fact kind %q", f.Kind)
	}
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("fact missing name")
	}
	if f.Time.IsZero() {
		return fmt.Errorf("fact missing time")
	}
	return nil
}

// Direction is the directional change between two same-named observations.
type Direction string

const (
	DirUnchanged Direction = "unchanged"
	DirUp        Direction = "up"
	DirDown      Direction = "down"
)

// Delta is the derived change between the two most recent same-named facts.
// It is computed on read and never stored.
type Delta struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	// Magnitude is nil when either value is non-numeric or fewer than two
	// observations exist.
	Magnitude *float64 `json:"magnitude,omitempty"`
	Samples   int      `json:"samples"`
}

// Insufficient reports whether the series had fewer than two observations.
func (d Delta) Insufficient() bool { return d.Samples < 2 }

// Indicator renders the delta as the arrow used in rendered documents.
func (d Delta) Indicator() string {
	switch d.Direction {
	case DirUp:
		return "↑"
	case DirDown:
		return "↓"
	default:
		return "↔"
	}
}

// Band is the automation tier derived from confidence and guard outcome.
type Band string

const (
	BandAuto    Band = "A" // auto-accept
	BandSoft    Band = "B" // soft confirm
	BandMust    Band = "C" // must confirm with evidence
	BandBlocked Band = "D" // blocked
)

// ChipType classifies what a chip asks the clinician to confirm.
type ChipType string

const (
	ChipValue     ChipType = "value"
	ChipMissing   ChipType = "missing"
	ChipGuard     ChipType = "guard"
	ChipAmbiguity ChipType = "ambiguity"
	ChipTimer     ChipType = "timer"
	ChipUnit      ChipType = "unit"
)

// ChipState is the lifecycle state of a chip.
type ChipState string

const (
	StateOpen       ChipState = "open"
	StateAccepted   ChipState = "accepted"
	StateEdited     ChipState = "edited"
	StateOverridden ChipState = "overridden"
	StateDismissed  ChipState = "dismissed"
)

// Terminal reports whether the state ends the chip's lifecycle (subject to
// escalation re-open).
func (s ChipState) Terminal() bool { return s != StateOpen }

// ChipAction is a user action submitted against a chip.
type ChipAction string

const (
	ActionAccept   ChipAction = "accept"
	ActionEdit     ChipAction = "edit"
	ActionOverride ChipAction = "override"
	ActionDismiss  ChipAction = "dismiss"
	// ActionEvidence is a non-mutating view of cited evidence; it satisfies
	// the acknowledgement requirement for band C/D accepts.
	ActionEvidence ChipAction = "evidence"
)

// Risk tags the clinical risk attached to a slot.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Chip is a single confirmable unit of uncertainty surfaced to the clinician.
// Band is always re-derivable from confidence, risk, and guard outcome at
// creation time; it is never user-set.
type Chip struct {
	ChipID     string       `json:"chip_id"`
	Slot       string       `json:"slot"`
	Type       ChipType     `json:"type"`
	Band       Band         `json:"band"`
	Label      string       `json:"label"`
	Proposed   string       `json:"proposed,omitempty"`
	Value      string       `json:"value,omitempty"` // set by an edit transition
	Confidence float64      `json:"confidence"`
	Risk       Risk         `json:"risk"`
	Evidence   []string     `json:"evidence,omitempty"` // cited fact ids, ordered
	Actions    []ChipAction `json:"actions,omitempty"`
	State      ChipState    `json:"state"`
	// Reason is non-empty if and only if the last transition was an override.
	Reason    string    `json:"reason,omitempty"`
	GuardName string    `json:"guard_name,omitempty"` // set for guard chips
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GuardOutcome is the result of a safety predicate.
type GuardOutcome string

const (
	GuardPass    GuardOutcome = "pass"
	GuardFail    GuardOutcome = "fail"
	GuardUnknown GuardOutcome = "unknown"
)

// GuardResult is a guard evaluation outcome. Unknown fails closed: for
// banding purposes it blocks exactly like fail.
type GuardResult struct {
	Guard      string       `json:"guard"`
	Outcome    GuardOutcome `json:"outcome"`
	ReasonCode string       `json:"reason_code,omitempty"`
	Detail     string       `json:"detail,omitempty"`
}

// Blocked reports whether the result forces band D.
func (g GuardResult) Blocked() bool { return g.Outcome != GuardPass }

// AnyBlocked reports whether any result in the set blocks.
func AnyBlocked(results []GuardResult) bool {
	for _, r := range results {
		if r.Blocked() {
			return true
		}
	}
	return false
}

// SlotScore carries the per-field signals consumed by the confidence formula.
// Absent signals stay at their zero value and contribute nothing.
type SlotScore struct {
	RuleHit   float64 `json:"rule_hit"`
	PModel    float64 `json:"p_model"`
	CASR      float64 `json:"c_asr"`
	SOntology float64 `json:"s_ontology"`
	SContext  float64 `json:"s_context"`
}

// AuditRecord is one immutable entry in the append-only chip transition log.
type AuditRecord struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ChipID      string    `json:"chip_id"`
	Action      string    `json:"action"`
	BeforeState ChipState `json:"before_state"`
	AfterState  ChipState `json:"after_state"`
	Value       string    `json:"value,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Session is the summary record for one active encounter.
type Session struct {
	SessionID  string           `json:"session_id"`
	StartedAt  time.Time        `json:"started_at"`
	LastSeenAt time.Time        `json:"last_seen_at"`
	Keystrokes int              `json:"keystrokes"`
	Timers     map[string]int64 `json:"timers"` // name -> accumulated ms
	ChipCounts map[Band]int     `json:"chip_counts"`
}
