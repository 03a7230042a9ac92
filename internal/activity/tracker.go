// Package activity owns the last_active timestamp on users. Nothing else in
// the codebase writes it.
package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Tracker records user activity. Recording is best-effort: storage errors are
// logged and swallowed, because a lost touch only delays the inactivity clock
// by one debounce window.
type Tracker struct {
	db       *gorm.DB
	logger   *slog.Logger
	debounce time.Duration

	mu        sync.Mutex
	lastTouch map[uint]time.Time

	now func() time.Time
}

// NewTracker creates a Tracker with the given debounce window.
func NewTracker(db *gorm.DB, logger *slog.Logger, debounce time.Duration) *Tracker {
	return &Tracker{
		db:        db,
		logger:    logger,
		debounce:  debounce,
		lastTouch: make(map[uint]time.Time),
		now:       time.Now,
	}
}

// Record sets last_active = now for the user. Idempotent, debounced to avoid
// write amplification from per-request touches.
func (t *Tracker) Record(ctx context.Context, userID uint) {
	now := t.now()

	t.mu.Lock()
	if last, ok := t.lastTouch[userID]; ok && now.Sub(last) < t.debounce {
		t.mu.Unlock()
		return
	}
	t.lastTouch[userID] = now
	t.mu.Unlock()

	err := t.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_active", now).Error
	if err != nil {
		t.logger.Warn("Failed to record activity", "user_id", userID, "error", err.Error())
	}
}

// Middleware opportunistically touches activity on any authenticated request.
// Must run after the auth middleware, which puts the database user id on the
// gin context.
func (t *Tracker) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v, ok := c.Get("db_user_id"); ok {
			if userID, ok := v.(uint); ok {
				t.Record(c.Request.Context(), userID)
			}
		}
		c.Next()
	}
}
