package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aliendevit/minuteone/internal/apperr"
	"github.com/aliendevit/minuteone/internal/metrics"
	"github.com/aliendevit/minuteone/internal/model"
)

// IngestFacts inserts a batch of facts. The batch is atomic: either every
// fact lands (with its index entries) or none do. Re-ingesting an identical
// id is an idempotent upsert; facts without an id get a generated one so
// distinct observations always stay distinct rows.
func (s *SQLiteStore) IngestFacts(ctx context.Context, facts []model.Fact) (int, error) {
	for i, f := range facts {
		if err := f.Validate(); err != nil {
			return 0, apperr.Validation("INVALID_FACT", fmt.Sprintf("fact %d: %v", i, err))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Storage(err, "begin ingest")
	}
	defer tx.Rollback()

	written := 0
	for _, f := range facts {
		if f.ID == "" {
			f.ID = s.newID()
		}
		// Explicit update-else-insert keeps the FTS triggers honest:
		// INSERT OR REPLACE would skip the delete trigger and leave a
		// stale index entry behind.
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM facts WHERE id = ?`, f.ID).Scan(&exists)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO facts (id, kind, name, value, time, source_id) VALUES (?, ?, ?, ?, ?, ?)`,
				f.ID, string(f.Kind), f.Name, f.Value, f.Time.UTC().Format(time.RFC3339), f.SourceID)
			if err != nil {
				return 0, apperr.Storage(err, "insert fact")
			}
		case err != nil:
			return 0, apperr.Storage(err, "probe fact")
		default:
			_, err = tx.ExecContext(ctx,
				`UPDATE facts SET kind = ?, name = ?, value = ?, time = ?, source_id = ? WHERE id = ?`,
				string(f.Kind), f.Name, f.Value, f.Time.UTC().Format(time.RFC3339), f.SourceID, f.ID)
			if err != nil {
				return 0, apperr.Storage(err, "update fact")
			}
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Storage(err, "commit ingest")
	}
	return written, nil
}

// QueryParams filters a window query.
type QueryParams struct {
	Window time.Duration
	Kinds  []model.FactKind
	Text   string
	Limit  int
}

// QueryFacts returns facts inside the window, newest first. When Text is set
// it is matched against (kind, name, value) with FTS, falling back to
// substring matching if the FTS index is unavailable.
func (s *SQLiteStore) QueryFacts(ctx context.Context, p QueryParams) ([]model.Fact, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 200
	}
	if p.Text != "" {
		return s.searchFacts(ctx, p.Text, limit)
	}

	cutoff := time.Now().UTC().Add(-p.Window).Format(time.RFC3339)
	where := []string{"time >= ?"}
	args := []interface{}{cutoff}
	if len(p.Kinds) > 0 {
		ph := make([]string, len(p.Kinds))
		for i, k := range p.Kinds {
			ph[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(ph, ",")+")")
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT id, kind, name, value, time, source_id FROM facts
		 WHERE %s ORDER BY time DESC, id DESC LIMIT ?`, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "query facts")
	}
	defer rows.Close()
	return scanFacts(rows)
}

// Context groups a window query by kind, for the document renderers.
func (s *SQLiteStore) Context(ctx context.Context, window time.Duration) (map[model.FactKind][]model.Fact, error) {
	facts, err := s.QueryFacts(ctx, QueryParams{Window: window})
	if err != nil {
		return nil, err
	}
	out := map[model.FactKind][]model.Fact{
		model.KindLab: {}, model.KindVital: {}, model.KindMed: {}, model.KindNote: {}, model.KindImage: {},
	}
	for _, f := range facts {
		out[f.Kind] = append(out[f.Kind], f)
	}
	return out, nil
}

func (s *SQLiteStore) searchFacts(ctx context.Context, text string, limit int) ([]model.Fact, error) {
	if s.fts {
		rows, err := s.db.QueryContext(ctx,
			`SELECT f.id, f.kind, f.name, f.value, f.time, f.source_id
			 FROM facts f JOIN facts_fts ft ON ft.rowid = f.rowid
			 WHERE facts_fts MATCH ?
			 ORDER BY f.time DESC, f.id DESC LIMIT ?`,
			ftsQuery(text), limit)
		if err == nil {
			defer rows.Close()
			return scanFacts(rows)
		}
		// Malformed MATCH input drops through to the substring path.
	}
	metrics.SearchFallbacks.Inc()
	like := "%" + text + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, name, value, time, source_id FROM facts
		 WHERE kind LIKE ? OR name LIKE ? OR value LIKE ?
		 ORDER BY time DESC, id DESC LIMIT ?`,
		like, like, like, limit)
	if err != nil {
		return nil, apperr.Storage(err, "search facts")
	}
	defer rows.Close()
	return scanFacts(rows)
}

// ftsQuery quotes each token so user text cannot inject FTS5 syntax.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

// LookupLatest returns the most recent fact with the given name, or nil when
// none exists. Identical timestamps break toward the larger id.
func (s *SQLiteStore) LookupLatest(ctx context.Context, name string) (*model.Fact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, name, value, time, source_id FROM facts
		 WHERE name = ? ORDER BY time DESC, id DESC LIMIT 1`, name)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(err, "lookup latest")
	}
	return &f, nil
}

// LookupSeries returns every fact sharing the name in chronological order,
// identical timestamps ordered by id.
func (s *SQLiteStore) LookupSeries(ctx context.Context, name string) ([]model.Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, name, value, time, source_id FROM facts
		 WHERE name = ? ORDER BY time ASC, id ASC`, name)
	if err != nil {
		return nil, apperr.Storage(err, "lookup series")
	}
	defer rows.Close()
	return scanFacts(rows)
}

// FactsByID returns the facts with the given ids; missing ids are skipped.
func (s *SQLiteStore) FactsByID(ctx context.Context, ids []string) ([]model.Fact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, name, value, time, source_id FROM facts
		 WHERE id IN (`+strings.Join(ph, ",")+`) ORDER BY time ASC, id ASC`, args...)
	if err != nil {
		return nil, apperr.Storage(err, "facts by id")
	}
	defer rows.Close()
	return scanFacts(rows)
}

// FactsBefore lists facts older than the cutoff, for retention sweeps.
func (s *SQLiteStore) FactsBefore(ctx context.Context, cutoff time.Time) ([]model.Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, name, value, time, source_id FROM facts
		 WHERE time < ? ORDER BY time ASC, id ASC`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, apperr.Storage(err, "facts before")
	}
	defer rows.Close()
	return scanFacts(rows)
}

// DeleteFactsBefore removes facts older than the cutoff along with their
// index entries. Callers must dismiss chips citing them first.
func (s *SQLiteStore) DeleteFactsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM facts WHERE time < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, apperr.Storage(err, "delete facts")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFact(row scanner) (model.Fact, error) {
	var f model.Fact
	var kind, ts string
	var value, sourceID sql.NullString
	if err := row.Scan(&f.ID, &kind, &f.Name, &value, &ts, &sourceID); err != nil {
		return f, err
	}
	f.Kind = model.FactKind(kind)
	f.Value = value.String
	f.SourceID = sourceID.String
	f.Time, _ = time.Parse(time.RFC3339, ts)
	return f, nil
}

func scanFacts(rows *sql.Rows) ([]model.Fact, error) {
	var facts []model.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
