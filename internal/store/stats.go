package store

import (
	"context"
	"os"

	"github.com/aliendevit/minuteone/internal/model"
)

// Stats holds database statistics.
type Stats struct {
	DBPath       string                 `json:"db_path"`
	DBSizeBytes  int64                  `json:"db_size_bytes"`
	FTSEnabled   bool                   `json:"fts_enabled"`
	TotalFacts   int                    `json:"total_facts"`
	TotalChips   int                    `json:"total_chips"`
	OpenChips    int                    `json:"open_chips"`
	AuditEntries int                    `json:"audit_entries"`
	ChipsPerBand map[model.Band]int     `json:"chips_per_band"`
	FactsPerKind map[model.FactKind]int `json:"facts_per_kind"`
	LastPathway  string                 `json:"last_pathway,omitempty"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{
		DBPath:       dbPath,
		FTSEnabled:   s.fts,
		ChipsPerBand: map[model.Band]int{},
		FactsPerKind: map[model.FactKind]int{},
	}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&st.TotalFacts)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chips`).Scan(&st.TotalChips)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chips WHERE state = 'open'`).Scan(&st.OpenChips)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&st.AuditEntries)

	rows, err := s.db.QueryContext(ctx, `SELECT band, COUNT(*) FROM chips GROUP BY band`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var band string
		var n int
		rows.Scan(&band, &n)
		st.ChipsPerBand[model.Band(band)] = n
	}

	kindRows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM facts GROUP BY kind`)
	if err != nil {
		return st, err
	}
	defer kindRows.Close()
	for kindRows.Next() {
		var kind string
		var n int
		kindRows.Scan(&kind, &n)
		st.FactsPerKind[model.FactKind(kind)] = n
	}

	if v, ok, err := s.KVGet(ctx, "last_pathway"); err == nil && ok {
		st.LastPathway = v
	}

	return st, nil
}
