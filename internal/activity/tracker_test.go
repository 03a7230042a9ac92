package activity

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func TestRecord_SetsLastActive(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, slog.Default(), time.Minute)

	user := &models.User{Email: "u@example.com"}
	require.NoError(t, db.Create(user).Error)
	require.Nil(t, user.LastActiveAt)

	tracker.Record(context.Background(), user.ID)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	require.NotNil(t, reloaded.LastActiveAt)
	assert.WithinDuration(t, time.Now(), *reloaded.LastActiveAt, 5*time.Second)
}

func TestRecord_DebouncesRepeatTouches(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, slog.Default(), time.Minute)

	user := &models.User{Email: "u@example.com"}
	require.NoError(t, db.Create(user).Error)

	tracker.Record(context.Background(), user.ID)

	// Overwrite the stored value; a debounced second touch must not restore it.
	marker := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(user).Update("last_active", marker).Error)

	tracker.Record(context.Background(), user.ID)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.True(t, reloaded.LastActiveAt.Equal(marker), "debounced touch must skip the write")
}

func TestRecord_WritesAgainAfterDebounceWindow(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, slog.Default(), time.Minute)

	user := &models.User{Email: "u@example.com"}
	require.NoError(t, db.Create(user).Error)

	tracker.Record(context.Background(), user.ID)

	marker := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(user).Update("last_active", marker).Error)

	// Step the tracker clock past the debounce window.
	tracker.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	tracker.Record(context.Background(), user.ID)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.False(t, reloaded.LastActiveAt.Equal(marker))
}

func TestRecord_UnknownUserIsSwallowed(t *testing.T) {
	db := newTestDB(t)
	tracker := NewTracker(db, slog.Default(), time.Minute)

	// Best-effort contract: no panic, no error surfaced.
	tracker.Record(context.Background(), 424242)
}
