package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/aliendevit/minuteone/internal/apperr"
	"github.com/aliendevit/minuteone/internal/model"
)

// PutChip inserts a new chip row. The chip id is generated when empty.
func (s *SQLiteStore) PutChip(ctx context.Context, c *model.Chip) error {
	if c.ChipID == "" {
		c.ChipID = s.newID()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.State == "" {
		c.State = model.StateOpen
	}

	evidence, _ := json.Marshal(c.Evidence)
	actions, _ := json.Marshal(c.Actions)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chips (chip_id, slot, type, band, label, proposed, value, confidence, risk,
		                    evidence, actions, state, reason, guard_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ChipID, c.Slot, string(c.Type), string(c.Band), c.Label, c.Proposed, c.Value,
		c.Confidence, string(c.Risk), string(evidence), string(actions),
		string(c.State), nullable(c.Reason), nullable(c.GuardName),
		c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return apperr.Storage(err, "insert chip")
	}
	return nil
}

// GetChip returns a chip by id.
func (s *SQLiteStore) GetChip(ctx context.Context, chipID string) (*model.Chip, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chipColumns+` FROM chips WHERE chip_id = ?`, chipID)
	c, err := scanChip(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("chip", chipID)
	}
	if err != nil {
		return nil, apperr.Storage(err, "get chip")
	}
	return &c, nil
}

// ChipFilter narrows a chip listing.
type ChipFilter struct {
	Band   model.Band
	State  model.ChipState
	States []model.ChipState
	Types  []model.ChipType
	// Limit caps the result. Zero means the default page of 200; a negative
	// value returns every match, for scans that must see all chips.
	Limit int
}

// ListChips returns chips matching the filter, most recently updated first.
func (s *SQLiteStore) ListChips(ctx context.Context, f ChipFilter) ([]model.Chip, error) {
	limit := f.Limit
	if limit == 0 {
		limit = 200
	}
	where := []string{"1=1"}
	var args []interface{}
	if f.Band != "" {
		where = append(where, "band = ?")
		args = append(args, string(f.Band))
	}
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(f.State))
	}
	if len(f.States) > 0 {
		ph := make([]string, len(f.States))
		for i, st := range f.States {
			ph[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "state IN ("+strings.Join(ph, ",")+")")
	}
	if len(f.Types) > 0 {
		ph := make([]string, len(f.Types))
		for i, t := range f.Types {
			ph[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(ph, ",")+")")
	}
	query := `SELECT ` + chipColumns + ` FROM chips WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY updated_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "list chips")
	}
	defer rows.Close()

	var chips []model.Chip
	for rows.Next() {
		c, err := scanChip(rows)
		if err != nil {
			return nil, apperr.Storage(err, "scan chip")
		}
		chips = append(chips, c)
	}
	return chips, rows.Err()
}

// Transition records a chip state change. The audit append and the row
// update commit together; the state change is not acknowledged unless the
// audit entry is durably written. The expected before-state is re-checked
// inside the transaction so a racing writer surfaces as a conflict.
type Transition struct {
	ChipID string
	From   model.ChipState
	To     model.ChipState
	Action string
	Value  string // new value for edits, empty otherwise
	Reason string // required for overrides, empty otherwise
	// Note lands only in the audit record, never on the chip row; chip
	// reason stays reserved for overrides.
	Note string
}

// TransitionChip applies a transition atomically and returns the updated chip.
func (s *SQLiteStore) TransitionChip(ctx context.Context, t Transition) (*model.Chip, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Storage(err, "begin transition")
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT state FROM chips WHERE chip_id = ?`, t.ChipID).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("chip", t.ChipID)
	}
	if err != nil {
		return nil, apperr.Storage(err, "read chip state")
	}
	if model.ChipState(current) != t.From {
		return nil, apperr.Conflict("chip " + t.ChipID + " is " + current + ", expected " + string(t.From))
	}

	now := time.Now().UTC()
	auditReason := t.Reason
	if auditReason == "" {
		auditReason = t.Note
	}
	// Audit before ack: the log row goes in first, inside the same
	// transaction as the state update.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_log (id, ts, chip_id, action, before_state, after_state, value, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.newID(), now.Format(time.RFC3339Nano), t.ChipID, t.Action,
		string(t.From), string(t.To), nullable(t.Value), nullable(auditReason))
	if err != nil {
		return nil, apperr.Storage(err, "append audit")
	}

	set := `state = ?, reason = ?, updated_at = ?`
	args := []interface{}{string(t.To), nullable(t.Reason), now.Format(time.RFC3339)}
	if t.Value != "" {
		set += `, value = ?`
		args = append(args, t.Value)
	}
	args = append(args, t.ChipID)
	if _, err := tx.ExecContext(ctx, `UPDATE chips SET `+set+` WHERE chip_id = ?`, args...); err != nil {
		return nil, apperr.Storage(err, "update chip")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage(err, "commit transition")
	}
	return s.GetChip(ctx, t.ChipID)
}

// AuditTrail returns the append-only transition history for a chip, oldest
// first.
func (s *SQLiteStore) AuditTrail(ctx context.Context, chipID string) ([]model.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, chip_id, action, before_state, after_state, value, reason
		 FROM audit_log WHERE chip_id = ? ORDER BY ts ASC, id ASC`, chipID)
	if err != nil {
		return nil, apperr.Storage(err, "audit trail")
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		var r model.AuditRecord
		var ts, before, after string
		var value, reason sql.NullString
		if err := rows.Scan(&r.ID, &ts, &r.ChipID, &r.Action, &before, &after, &value, &reason); err != nil {
			return nil, apperr.Storage(err, "scan audit")
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.BeforeState = model.ChipState(before)
		r.AfterState = model.ChipState(after)
		r.Value = value.String
		r.Reason = reason.String
		records = append(records, r)
	}
	return records, rows.Err()
}

const chipColumns = `chip_id, slot, type, band, label, proposed, value, confidence, risk,
	evidence, actions, state, reason, guard_name, created_at, updated_at`

func scanChip(row scanner) (model.Chip, error) {
	var c model.Chip
	var typ, band, risk, state, createdAt, updatedAt string
	var label, proposed, value, evidence, actions, reason, guardName sql.NullString
	err := row.Scan(&c.ChipID, &c.Slot, &typ, &band, &label, &proposed, &value,
		&c.Confidence, &risk, &evidence, &actions, &state, &reason, &guardName,
		&createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	c.Type = model.ChipType(typ)
	c.Band = model.Band(band)
	c.Risk = model.Risk(risk)
	c.State = model.ChipState(state)
	c.Label = label.String
	c.Proposed = proposed.String
	c.Value = value.String
	c.Reason = reason.String
	c.GuardName = guardName.String
	if evidence.Valid {
		json.Unmarshal([]byte(evidence.String), &c.Evidence)
	}
	if actions.Valid {
		json.Unmarshal([]byte(actions.String), &c.Actions)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return c, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
