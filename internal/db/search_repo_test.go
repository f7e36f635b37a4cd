package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

func TestSearchRepository_Create(t *testing.T) {
	db := &mockDBTX{}
	created := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(&mockRow{
		scanFn: func(dest ...any) error {
			*(dest[0].(*string)) = "srch_1"
			*(dest[1].(*time.Time)) = created
			return nil
		},
	})

	repo := NewSearchRepository(db)
	s := &types.Search{
		MonitorID: "mon_1",
		QueryText: "acme breach",
		Status:    types.SearchStatusCompleted,
	}
	require.NoError(t, repo.Create(context.Background(), s))

	assert.Equal(t, "srch_1", s.ID)
	assert.Equal(t, created, s.CreatedAt)

	args := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, []any{"mon_1", "acme breach", "completed"}, args)
}

func TestSearchRepository_Create_InsertError(t *testing.T) {
	db := &mockDBTX{}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(&mockRow{
		scanErr: errors.New("constraint violation"),
	})

	repo := NewSearchRepository(db)
	err := repo.Create(context.Background(), &types.Search{MonitorID: "mon_1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
