// Package chips implements the chip lifecycle manager: the single
// enforcement point for chip state transitions, the append-only audit trail,
// and evidence-driven escalation.
package chips

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/aliendevit/minuteone/internal/apperr"
	"github.com/aliendevit/minuteone/internal/metrics"
	"github.com/aliendevit/minuteone/internal/model"
	"github.com/aliendevit/minuteone/internal/score"
	"github.com/aliendevit/minuteone/internal/store"
)

// transitions is the full state machine: states x actions -> next state.
// Anything absent here is an illegal transition.
var transitions = map[model.ChipState]map[model.ChipAction]model.ChipState{
	model.StateOpen: {
		model.ActionAccept:   model.StateAccepted,
		model.ActionEdit:     model.StateEdited,
		model.ActionOverride: model.StateOverridden,
		model.ActionDismiss:  model.StateDismissed,
	},
}

// Manager owns all chip mutation. Transitions on the same chip are
// serialized through a per-chip lock; distinct chips proceed in parallel.
type Manager struct {
	store  *store.SQLiteStore
	scorer *score.Scorer
	log    *zap.Logger

	mu    sync.Mutex
	locks map[string]*chipLock
}

// chipLock is reference counted so the lock table holds entries only for
// chips with a transition in flight, not every chip ever touched.
type chipLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a lifecycle manager.
func NewManager(st *store.SQLiteStore, sc *score.Scorer, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:  st,
		scorer: sc,
		locks:  map[string]*chipLock{},
		log:    log,
	}
}

func (m *Manager) acquire(chipID string) *chipLock {
	m.mu.Lock()
	l, ok := m.locks[chipID]
	if !ok {
		l = &chipLock{}
		m.locks[chipID] = l
	}
	l.refs++
	m.mu.Unlock()
	l.mu.Lock()
	return l
}

func (m *Manager) release(chipID string, l *chipLock) {
	l.mu.Unlock()
	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, chipID)
	}
	m.mu.Unlock()
}

// BuildParams describes a chip to create from extraction signals and guard
// outcomes.
type BuildParams struct {
	Slot      string
	Type      model.ChipType
	Label     string
	Proposed  string
	Signals   model.SlotScore
	Risk      model.Risk
	Guards    []model.GuardResult
	Evidence  []string
	GuardName string
}

// Build scores, bands and persists a new open chip. Banding is derived, not
// caller-set.
func (m *Manager) Build(ctx context.Context, p BuildParams) (*model.Chip, error) {
	risk := p.Risk
	if risk == "" {
		risk = model.RiskLow
	}
	confidence, band := m.scorer.Score(p.Signals, risk, p.Guards)
	label := p.Label
	if label == "" {
		label = strings.ReplaceAll(p.Slot, "_", " ")
	}
	chip := &model.Chip{
		Slot:       p.Slot,
		Type:       p.Type,
		Band:       band,
		Label:      label,
		Proposed:   p.Proposed,
		Confidence: confidence,
		Risk:       risk,
		Evidence:   p.Evidence,
		Actions:    score.ActionsFor(band, p.Type),
		State:      model.StateOpen,
		GuardName:  p.GuardName,
	}
	if err := m.store.PutChip(ctx, chip); err != nil {
		return nil, err
	}
	metrics.ChipsCreated.WithLabelValues(string(band)).Inc()
	m.log.Debug("chip created",
		zap.String("chip_id", chip.ChipID),
		zap.String("slot", chip.Slot),
		zap.String("band", string(band)))
	return chip, nil
}

// ResolveRequest is a user action against a chip.
type ResolveRequest struct {
	ChipID string
	Action model.ChipAction
	Value  string
	Reason string
	// Acknowledged asserts the user viewed the evidence; accepting a band
	// C or D chip without it is rejected at this boundary.
	Acknowledged bool
}

// Resolve applies a user action to a chip. The row update and the audit
// append are atomic, and at most one transition per chip is in flight at a
// time.
func (m *Manager) Resolve(ctx context.Context, req ResolveRequest) (*model.Chip, error) {
	l := m.acquire(req.ChipID)
	defer m.release(req.ChipID, l)

	chip, err := m.store.GetChip(ctx, req.ChipID)
	if err != nil {
		return nil, err
	}

	next, ok := transitions[chip.State][req.Action]
	if !ok {
		return nil, apperr.Validation("illegal_transition",
			"action "+string(req.Action)+" is not allowed from state "+string(chip.State))
	}

	if err := m.gate(chip, req); err != nil {
		return nil, err
	}

	updated, err := m.store.TransitionChip(ctx, store.Transition{
		ChipID: chip.ChipID,
		From:   chip.State,
		To:     next,
		Action: string(req.Action),
		Value:  req.Value,
		Reason: req.Reason,
	})
	if err != nil {
		return nil, err
	}

	metrics.ChipTransitions.WithLabelValues(string(req.Action), string(chip.State), string(next)).Inc()
	m.log.Info("chip resolved",
		zap.String("chip_id", chip.ChipID),
		zap.String("action", string(req.Action)),
		zap.String("state", string(next)))
	return updated, nil
}

// gate enforces the band- and type-specific rules on top of the transition
// table.
func (m *Manager) gate(chip *model.Chip, req ResolveRequest) error {
	blocked := chip.Band == model.BandBlocked
	guardBlocked := blocked && chip.Type == model.ChipGuard

	switch req.Action {
	case model.ActionAccept:
		if guardBlocked {
			return apperr.Validation("guard_blocked",
				"chip is blocked by guard "+chip.GuardName+"; only override or dismiss are allowed")
		}
		if (chip.Band == model.BandMust || blocked) && !req.Acknowledged {
			return apperr.Validation("ack_required",
				"band "+string(chip.Band)+" requires viewing evidence before accepting")
		}
	case model.ActionEdit:
		if guardBlocked {
			return apperr.Validation("guard_blocked",
				"chip is blocked by guard "+chip.GuardName+"; only override or dismiss are allowed")
		}
		if strings.TrimSpace(req.Value) == "" {
			return apperr.Validation("value_required", "edit requires a value")
		}
	case model.ActionOverride:
		if strings.TrimSpace(req.Reason) == "" {
			return apperr.Validation("reason_required", "override requires a non-empty reason")
		}
	}
	return nil
}

// AuditTrail returns the chip's immutable transition history.
func (m *Manager) AuditTrail(ctx context.Context, chipID string) ([]model.AuditRecord, error) {
	return m.store.AuditTrail(ctx, chipID)
}
