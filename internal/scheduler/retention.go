package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/schedule"
)

// RetentionDB defines the database operations needed by the RetentionService.
type RetentionDB interface {
	// DeleteOlderThan removes reports created before cutoff and returns the
	// number of deleted rows.
	//
	// SQL: DELETE FROM reports WHERE created_at < $1
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionService prunes reports older than the configured retention period.
// Report rows reference their artifact by URL only; S3 object expiry is
// handled by a bucket lifecycle rule, not by this service.
type RetentionService struct {
	db            RetentionDB
	retentionDays int
	logger        *slog.Logger
	clock         schedule.Clock
}

// NewRetentionService creates a RetentionService.
func NewRetentionService(db RetentionDB, retentionDays int, logger *slog.Logger) *RetentionService {
	return &RetentionService{
		db:            db,
		retentionDays: retentionDays,
		logger:        logger,
		clock:         schedule.RealClock{},
	}
}

// WithClock substitutes the time source, for tests.
func (s *RetentionService) WithClock(clock schedule.Clock) *RetentionService {
	s.clock = clock
	return s
}

// Run deletes reports past the retention cutoff and returns the deleted count.
func (s *RetentionService) Run(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -s.retentionDays)

	deleted, err := s.db.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "retention cleanup failed",
			"cutoff", cutoff,
			"error", err.Error(),
		)
		return 0, err
	}

	s.logger.InfoContext(ctx, "retention cleanup completed",
		"cutoff", cutoff,
		"deleted", deleted,
	)
	return deleted, nil
}
