package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/schedule"
)

type mockRetentionDB struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (m *mockRetentionDB) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.cutoff = cutoff
	if m.err != nil {
		return 0, m.err
	}
	return m.deleted, nil
}

func TestRetention_DeletesPastCutoff(t *testing.T) {
	now := time.Date(2023, time.June, 15, 3, 0, 0, 0, time.UTC)
	db := &mockRetentionDB{deleted: 42}
	svc := NewRetentionService(db, 30, testLogger()).WithClock(schedule.FixedClock{Instant: now})

	deleted, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	if deleted != 42 {
		t.Errorf("expected 42 deleted, got %d", deleted)
	}

	want := time.Date(2023, time.May, 16, 3, 0, 0, 0, time.UTC)
	if !db.cutoff.Equal(want) {
		t.Errorf("expected cutoff %s, got %s", want, db.cutoff)
	}
}

func TestRetention_DBFailurePropagates(t *testing.T) {
	db := &mockRetentionDB{err: errors.New("connection refused")}
	svc := NewRetentionService(db, 30, testLogger())

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected an error when deletion fails")
	}
}
