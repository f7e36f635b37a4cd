package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// monitorColumns is the standard column set for monitor queries.
const monitorColumns = `id, user_id, query_text, frequency, active, next_run_at, created_at, updated_at`

// MonitorRepository provides data access for the monitors table.
//
// Writes to monitors have exactly two sources: Create (API creation path)
// and UpdateNextRunAt (the scheduler's reschedule step). UpdateNextRunAt is
// deliberately a minimal partial update so the scheduler can never clobber
// concurrent edits to active or query_text made through the API.
type MonitorRepository struct {
	db DBTX
}

// NewMonitorRepository creates a new MonitorRepository backed by the given
// database connection (pool or transaction).
func NewMonitorRepository(db DBTX) *MonitorRepository {
	return &MonitorRepository{db: db}
}

// Create inserts a new monitor and populates the DB-generated ID and
// timestamps on the passed struct.
func (r *MonitorRepository) Create(ctx context.Context, m *types.Monitor) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO monitors (user_id, query_text, frequency, active, next_run_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		m.UserID,
		m.QueryText,
		string(m.Cadence),
		m.Active,
		m.NextRunAt,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return storeError("failed to create monitor", err)
	}
	return nil
}

// GetByID returns the monitor with the given ID, or (nil, nil) when no such
// row exists. A missing monitor is not an error at this layer: the scan
// executor treats it as a stale reference, and the API maps nil to 404.
// A malformed ID is treated the same way, since it cannot match any row.
func (r *MonitorRepository) GetByID(ctx context.Context, id string) (*types.Monitor, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE id = $1`,
		id,
	)

	m, err := scanMonitor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMalformedIdentifier(err) {
			return nil, nil
		}
		return nil, storeError("failed to get monitor", err)
	}
	return m, nil
}

// ListDue returns all monitors due for a scan: active = true and
// next_run_at <= now. No batch limit is applied here; the sweep processes
// each row independently.
func (r *MonitorRepository) ListDue(ctx context.Context, now time.Time) ([]*types.Monitor, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+monitorColumns+` FROM monitors
		 WHERE active = TRUE AND next_run_at <= $1`,
		now,
	)
	if err != nil {
		return nil, storeError("failed to query due monitors", err)
	}
	defer rows.Close()

	var monitors []*types.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, storeError("failed to scan monitor", err)
		}
		monitors = append(monitors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating monitors", err)
	}

	return monitors, nil
}

// UpdateNextRunAt persists a new next_run_at for exactly one monitor.
// The statement touches only next_run_at (plus updated_at); it must never
// grow additional SET clauses, so concurrent field edits from the API
// survive a sweep that raced with them.
func (r *MonitorRepository) UpdateNextRunAt(ctx context.Context, id string, next time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE monitors SET next_run_at = $2, updated_at = NOW() WHERE id = $1`,
		id,
		next,
	)
	if err != nil {
		return storeError("failed to update monitor next_run_at", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundMonitor, "monitor not found", nil)
	}
	return nil
}

// scanMonitor scans a single monitor row. Column order must match
// monitorColumns. next_run_at is normalized to UTC on read: rows written by
// older clients without an offset follow the fixed treat-as-UTC convention.
func scanMonitor(row pgx.Row) (*types.Monitor, error) {
	var (
		m       types.Monitor
		cadence string
	)
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.QueryText,
		&cadence,
		&m.Active,
		&m.NextRunAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.Cadence = types.Cadence(cadence)
	m.NextRunAt = m.NextRunAt.UTC()
	return &m, nil
}
