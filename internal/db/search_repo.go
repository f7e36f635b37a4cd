package db

import (
	"context"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// SearchRepository provides data access for the searches table. Search rows
// are append-only records of provider queries executed by the scan pipeline.
type SearchRepository struct {
	db DBTX
}

// NewSearchRepository creates a new SearchRepository backed by the given
// database connection (pool or transaction).
func NewSearchRepository(db DBTX) *SearchRepository {
	return &SearchRepository{db: db}
}

// Create inserts a new search record and populates the DB-generated ID and
// created_at on the passed struct.
func (r *SearchRepository) Create(ctx context.Context, s *types.Search) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO searches (monitor_id, query_text, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		s.MonitorID,
		s.QueryText,
		string(s.Status),
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return storeError("failed to create search record", err)
	}
	return nil
}
