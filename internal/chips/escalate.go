package chips

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aliendevit/minuteone/internal/delta"
	"github.com/aliendevit/minuteone/internal/metrics"
	"github.com/aliendevit/minuteone/internal/model"
	"github.com/aliendevit/minuteone/internal/store"
)

var terminalStates = []model.ChipState{
	model.StateAccepted, model.StateEdited, model.StateOverridden, model.StateDismissed,
}

// Escalate re-opens terminal value/guard chips contradicted by newly
// ingested facts. A contradiction is a new observation sharing a name with a
// cited evidence fact whose value no longer agrees with the chip. Re-open is
// automatic; returning to a terminal state takes a fresh explicit user
// action.
func (m *Manager) Escalate(ctx context.Context, ingested []model.Fact) (int, error) {
	if len(ingested) == 0 {
		return 0, nil
	}
	latest := map[string]model.Fact{}
	for _, f := range ingested {
		cur, ok := latest[f.Name]
		if !ok || f.Time.After(cur.Time) {
			latest[f.Name] = f
		}
	}

	// Every terminal chip is a candidate; the default listing page would
	// strand chips beyond it.
	candidates, err := m.store.ListChips(ctx, store.ChipFilter{
		States: terminalStates,
		Types:  []model.ChipType{model.ChipValue, model.ChipGuard},
		Limit:  -1,
	})
	if err != nil {
		return 0, err
	}

	reopened := 0
	for _, chip := range candidates {
		cited, err := m.store.FactsByID(ctx, chip.Evidence)
		if err != nil {
			return reopened, err
		}
		if !contradicted(chip, cited, latest) {
			continue
		}

		l := m.acquire(chip.ChipID)
		_, err = m.store.TransitionChip(ctx, store.Transition{
			ChipID: chip.ChipID,
			From:   chip.State,
			To:     model.StateOpen,
			Action: "reopen",
			Note:   "contradicted by new evidence",
		})
		m.release(chip.ChipID, l)
		if err != nil {
			// A racing user action moved the chip; skip rather than fail
			// the whole ingest.
			m.log.Warn("escalation skipped", zap.String("chip_id", chip.ChipID), zap.Error(err))
			continue
		}
		metrics.ChipEscalations.Inc()
		m.log.Info("chip re-opened by new evidence", zap.String("chip_id", chip.ChipID))
		reopened++
	}
	return reopened, nil
}

// contradicted reports whether any newly ingested fact disagrees with the
// chip. Value chips compare against the proposed value; guard chips compare
// against the cited evidence itself, since a changed input can flip the
// guard.
func contradicted(chip model.Chip, cited []model.Fact, latest map[string]model.Fact) bool {
	for _, ev := range cited {
		incoming, ok := latest[ev.Name]
		if !ok {
			continue
		}
		switch chip.Type {
		case model.ChipValue:
			if chip.Proposed != "" && !valuesAgree(incoming.Value, chip.Proposed) {
				return true
			}
		case model.ChipGuard:
			if !valuesAgree(incoming.Value, ev.Value) {
				return true
			}
		}
	}
	return false
}

// valuesAgree compares numerically when both sides parse, textually
// otherwise.
func valuesAgree(a, b string) bool {
	na, okA := delta.ParseNumeric(a)
	nb, okB := delta.ParseNumeric(b)
	if okA && okB {
		return na == nb
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Sweep expires facts older than the retention window. An open chip citing
// an expired fact is dismissed first, with an audit note, so no chip ever
// cites evidence that no longer exists.
func (m *Manager) Sweep(ctx context.Context, retention time.Duration) (dismissed, removed int, err error) {
	cutoff := time.Now().UTC().Add(-retention)

	expiring, err := m.store.FactsBefore(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	if len(expiring) == 0 {
		return 0, 0, nil
	}
	expired := make(map[string]bool, len(expiring))
	for _, f := range expiring {
		expired[f.ID] = true
	}

	// Facts are deleted only after every citing open chip is dismissed, so
	// the scan must cover all open chips, not one listing page.
	open, err := m.store.ListChips(ctx, store.ChipFilter{State: model.StateOpen, Limit: -1})
	if err != nil {
		return 0, 0, err
	}
	for _, chip := range open {
		cites := false
		for _, id := range chip.Evidence {
			if expired[id] {
				cites = true
				break
			}
		}
		if !cites {
			continue
		}
		l := m.acquire(chip.ChipID)
		_, terr := m.store.TransitionChip(ctx, store.Transition{
			ChipID: chip.ChipID,
			From:   model.StateOpen,
			To:     model.StateDismissed,
			Action: "retention_dismiss",
			Note:   "cited evidence expired from cache",
		})
		m.release(chip.ChipID, l)
		if terr != nil {
			// A racing user action normally moved the chip off open. If it
			// is still open the cited facts must survive this sweep.
			cur, gerr := m.store.GetChip(ctx, chip.ChipID)
			if gerr != nil || cur.State == model.StateOpen {
				return dismissed, 0, terr
			}
			m.log.Warn("retention dismissal skipped", zap.String("chip_id", chip.ChipID), zap.Error(terr))
			continue
		}
		metrics.RetentionDismissals.Inc()
		dismissed++
	}

	removed, err = m.store.DeleteFactsBefore(ctx, cutoff)
	return dismissed, removed, err
}
