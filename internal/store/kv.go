package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/aliendevit/minuteone/internal/apperr"
)

// KVSet stores a miscellaneous cached value.
func (s *SQLiteStore) KVSet(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv_cache (k, v, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return apperr.Storage(err, "kv set")
	}
	return nil
}

// KVGet returns the cached value, or "" with ok=false when absent.
func (s *SQLiteStore) KVGet(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv_cache WHERE k = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Storage(err, "kv get")
	}
	return v.String, true, nil
}
