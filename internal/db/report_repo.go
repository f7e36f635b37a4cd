package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// pgUndefinedColumn is the PostgreSQL error code for a reference to a column
// that does not exist (42703).
const pgUndefinedColumn = "42703"

// ReportRepository provides data access for the reports table.
type ReportRepository struct {
	db DBTX
}

// NewReportRepository creates a new ReportRepository backed by the given
// database connection (pool or transaction).
func NewReportRepository(db DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new report row and populates the DB-generated ID and
// created_at on the passed struct.
//
// item_count is an optional column: deployments running an older schema do
// not have it. If the insert is rejected with undefined_column, the insert
// is retried without item_count; a report must never fail over a derived
// convenience field.
func (r *ReportRepository) Create(ctx context.Context, rep *types.Report) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO reports (user_id, monitor_id, search_id, artifact_url, item_count)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		rep.UserID,
		rep.MonitorID,
		rep.SearchID,
		rep.ArtifactURL,
		rep.ItemCount,
	).Scan(&rep.ID, &rep.CreatedAt)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUndefinedColumn {
		return storeError("failed to create report", err)
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO reports (user_id, monitor_id, search_id, artifact_url)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		rep.UserID,
		rep.MonitorID,
		rep.SearchID,
		rep.ArtifactURL,
	).Scan(&rep.ID, &rep.CreatedAt)
	if err != nil {
		return storeError("failed to create report", err)
	}
	return nil
}

// GetByID returns the report with the given ID, or (nil, nil) when no such
// row exists or the ID is malformed.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*types.Report, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, monitor_id, search_id, artifact_url, COALESCE(item_count, 0), created_at
		 FROM reports WHERE id = $1`,
		id,
	)

	rep, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMalformedIdentifier(err) {
			return nil, nil
		}
		return nil, storeError("failed to get report", err)
	}
	return rep, nil
}

// ListByUser returns the newest reports for an owner, newest first, capped
// at limit. Used by the feed endpoint.
func (r *ReportRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*types.Report, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, monitor_id, search_id, artifact_url, COALESCE(item_count, 0), created_at
		 FROM reports
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, storeError("failed to query report feed", err)
	}
	defer rows.Close()

	var reports []*types.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, storeError("failed to scan report", err)
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating reports", err)
	}

	return reports, nil
}

// DeleteOlderThan removes reports created before the cutoff and returns the
// number of rows deleted. Used by the daily retention task.
func (r *ReportRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM reports WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, storeError("failed to delete old reports", err)
	}
	return tag.RowsAffected(), nil
}

// scanReport scans a single report row. Column order must match the SELECT
// statements above.
func scanReport(row pgx.Row) (*types.Report, error) {
	var rep types.Report
	if err := row.Scan(
		&rep.ID,
		&rep.UserID,
		&rep.MonitorID,
		&rep.SearchID,
		&rep.ArtifactURL,
		&rep.ItemCount,
		&rep.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rep, nil
}
