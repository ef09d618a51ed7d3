package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/aliendevit/minuteone/internal/apperr"
	"github.com/aliendevit/minuteone/internal/model"
)

func emptyChipCounts() map[model.Band]int {
	return map[model.Band]int{model.BandAuto: 0, model.BandSoft: 0, model.BandMust: 0, model.BandBlocked: 0}
}

// StartSession creates a session row if it does not exist yet.
func (s *SQLiteStore) StartSession(ctx context.Context, sessionID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	timers, _ := json.Marshal(map[string]int64{})
	counts, _ := json.Marshal(emptyChipCounts())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, started_at, last_seen_at, keystrokes, timers, chip_counts)
		 VALUES (?, ?, ?, 0, ?, ?)`,
		sessionID, now, now, string(timers), string(counts))
	if err != nil {
		return apperr.Storage(err, "start session")
	}
	return nil
}

// TouchSession bumps last_seen_at.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = ? WHERE session_id = ?`,
		time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return apperr.Storage(err, "touch session")
	}
	return nil
}

// AddKeystrokes increments the keystroke counter.
func (s *SQLiteStore) AddKeystrokes(ctx context.Context, sessionID string, n int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET keystrokes = keystrokes + ?, last_seen_at = ? WHERE session_id = ?`,
		n, time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return apperr.Storage(err, "add keystrokes")
	}
	return nil
}

// AddTimer accumulates elapsed time under a named timer. The increment is a
// single json_set statement so concurrent updaters cannot lose a write.
func (s *SQLiteStore) AddTimer(ctx context.Context, sessionID, name string, d time.Duration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET timers = json_set(COALESCE(timers, '{}'), '$."' || ? || '"',
		                       COALESCE(json_extract(timers, '$."' || ? || '"'), 0) + ?),
		     last_seen_at = ?
		 WHERE session_id = ?`,
		name, name, d.Milliseconds(), time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return apperr.Storage(err, "add timer")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("session", sessionID)
	}
	return nil
}

// AddChipCount increments the per-band chip counter, atomically like AddTimer.
func (s *SQLiteStore) AddChipCount(ctx context.Context, sessionID string, band model.Band, n int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET chip_counts = json_set(COALESCE(chip_counts, '{}'), '$."' || ? || '"',
		                            COALESCE(json_extract(chip_counts, '$."' || ? || '"'), 0) + ?),
		     last_seen_at = ?
		 WHERE session_id = ?`,
		string(band), string(band), n, time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return apperr.Storage(err, "add chip count")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return apperr.NotFound("session", sessionID)
	}
	return nil
}

// SessionSnapshot returns the session summary record.
func (s *SQLiteStore) SessionSnapshot(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, started_at, last_seen_at, keystrokes, timers, chip_counts
		 FROM sessions WHERE session_id = ?`, sessionID)

	var sess model.Session
	var started, seen string
	var timers, counts sql.NullString
	err := row.Scan(&sess.SessionID, &started, &seen, &sess.Keystrokes, &timers, &counts)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("session", sessionID)
	}
	if err != nil {
		return nil, apperr.Storage(err, "session snapshot")
	}
	sess.StartedAt, _ = time.Parse(time.RFC3339, started)
	sess.LastSeenAt, _ = time.Parse(time.RFC3339, seen)
	sess.Timers = map[string]int64{}
	sess.ChipCounts = emptyChipCounts()
	if timers.Valid {
		json.Unmarshal([]byte(timers.String), &sess.Timers)
	}
	if counts.Valid {
		json.Unmarshal([]byte(counts.String), &sess.ChipCounts)
	}
	return &sess, nil
}
