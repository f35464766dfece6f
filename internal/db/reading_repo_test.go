package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"envmonitor/internal/types"
)

var readingTS = time.Date(2026, 10, 14, 9, 55, 0, 0, time.UTC)

func readingRow(id int64, tvoc *int) []any {
	return []any{id, "dev-1", 24.5, 45.25, tvoc, 420, 55, readingTS, readingTS}
}

func TestReadingRepository_Create(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReadingRepository(db)
	ctx := context.Background()

	sr := &types.SensorReading{
		DeviceID:         "dev-1",
		Temperature:      24.5,
		Humidity:         45.25,
		TVOCPPM:          ptr(800),
		Light:            420,
		Noise:            55,
		ReadingTimestamp: readingTS,
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		return len(args) == 7 && args[0] == "dev-1" && *(args[3].(*int)) == 800
	})).Return(rowOf(int64(17), readingTS))

	require.NoError(t, repo.Create(ctx, sr))
	assert.Equal(t, int64(17), sr.ID)
	assert.Equal(t, readingTS, sr.CreatedAt)
	db.AssertExpectations(t)
}

func TestReadingRepository_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	ctx := context.Background()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("foreign key violation")})

	err := NewReadingRepository(db).Create(ctx, &types.SensorReading{DeviceID: "ghost"})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestReadingRepository_LatestSince(t *testing.T) {
	ctx := context.Background()
	since := readingTS.Add(-10 * time.Minute)

	t.Run("returns reading with nil tvoc preserved", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"dev-1", since}).
			Return(rowOf(readingRow(5, nil)...))

		sr, err := NewReadingRepository(db).LatestSince(ctx, "dev-1", since)
		require.NoError(t, err)
		require.NotNil(t, sr)
		assert.Nil(t, sr.TVOCPPM)
		assert.Equal(t, 45.25, sr.Humidity)
	})

	t.Run("no rows means nil without error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})

		sr, err := NewReadingRepository(db).LatestSince(ctx, "dev-1", since)
		require.NoError(t, err)
		assert.Nil(t, sr)
	})
}

func TestReadingRepository_CountSince(t *testing.T) {
	db := new(mockDBTX)
	ctx := context.Background()
	since := readingTS.Add(-2 * time.Hour)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"dev-1", since}).Return(rowOf(25))

	n, err := NewReadingRepository(db).CountSince(ctx, "dev-1", since)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestReadingRepository_Latest_NotFound(t *testing.T) {
	db := new(mockDBTX)
	ctx := context.Background()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := NewReadingRepository(db).Latest(ctx, "dev-1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundReading, appErr.Code)
	assert.Equal(t, "No readings found for this device", appErr.Message)
}

func TestReadingRepository_History(t *testing.T) {
	db := new(mockDBTX)
	ctx := context.Background()
	start := time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 10, 14, 23, 59, 59, 0, time.UTC)

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "BETWEEN $2 AND $3", "ORDER BY reading_timestamp DESC")
	}), []any{"dev-1", start, end}).Return(newMockRows([][]any{
		readingRow(9, ptr(1200)),
		readingRow(8, nil),
	}), nil)

	readings, err := NewReadingRepository(db).History(ctx, "dev-1", start, end)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, int64(9), readings[0].ID)
	assert.Equal(t, 1200, *readings[0].TVOCPPM)
	db.AssertExpectations(t)
}

func TestReadingRepository_History_EmptyIsNotNil(t *testing.T) {
	db := new(mockDBTX)
	ctx := context.Background()
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(newMockRows(nil), nil)

	readings, err := NewReadingRepository(db).History(ctx, "dev-1", readingTS, readingTS)
	require.NoError(t, err)
	assert.NotNil(t, readings)
	assert.Empty(t, readings)
}
