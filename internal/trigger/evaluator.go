// Package trigger runs the periodic sweeps that decide which messages are
// deliverable.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/afterwords-app/afterwords/internal/checks"
	"github.com/afterwords-app/afterwords/internal/database"
	"github.com/afterwords-app/afterwords/internal/delivery"
	"github.com/afterwords-app/afterwords/internal/models"
	"gorm.io/gorm"
)

// Evaluator drives the two sweeps. Items are processed sequentially in query
// order, and a failure on one user or message never aborts the rest of the
// sweep.
type Evaluator struct {
	db         *gorm.DB
	checks     *checks.Service
	dispatcher *delivery.Dispatcher
	logger     *slog.Logger

	now func() time.Time
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(db *gorm.DB, checkSvc *checks.Service, dispatcher *delivery.Dispatcher, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		db:         db,
		checks:     checkSvc,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// InactivitySweep walks every user with recorded activity through the check
// state machine, and dispatches inactivity-triggered messages for users whose
// check expired in this pass.
func (e *Evaluator) InactivitySweep(ctx context.Context) error {
	var users []models.User
	err := database.Retry(func() error {
		return e.db.WithContext(ctx).
			Where("last_active IS NOT NULL").
			Order("id").
			Find(&users).Error
	})
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	e.logger.Info("Inactivity sweep started", "users", len(users))

	for i := range users {
		user := &users[i]

		expired, err := e.checks.SweepUser(ctx, user)
		if err != nil {
			e.logger.Error("Check sweep failed for user", "user_id", user.ID, "error", err.Error())
			continue
		}
		if !expired {
			continue
		}

		e.dispatchInactivityMessages(ctx, user)
	}

	return nil
}

// DateSweep dispatches every draft message whose trigger date has passed.
// Date triggers are unconditional; there is no check or warning phase.
func (e *Evaluator) DateSweep(ctx context.Context) error {
	var ids []uint
	err := database.Retry(func() error {
		return e.db.WithContext(ctx).
			Model(&models.Message{}).
			Where("status = ? AND trigger_type = ? AND trigger_date IS NOT NULL AND trigger_date <= ?",
				models.MessageStatusDraft, models.TriggerDate, e.now()).
			Order("id").
			Pluck("id", &ids).Error
	})
	if err != nil {
		return fmt.Errorf("failed to list due messages: %w", err)
	}

	if len(ids) > 0 {
		e.logger.Info("Date sweep found due messages", "count", len(ids))
	}

	for _, id := range ids {
		if _, err := e.dispatcher.Deliver(ctx, id); err != nil {
			e.logger.Error("Date-triggered delivery failed", "message_id", id, "error", err.Error())
		}
	}

	return nil
}

// dispatchInactivityMessages hands all of one user's draft inactivity
// messages to the dispatcher. Called exactly once per missed check, from the
// sweep iteration that won the pending → missed transition.
func (e *Evaluator) dispatchInactivityMessages(ctx context.Context, user *models.User) {
	var ids []uint
	err := database.Retry(func() error {
		return e.db.WithContext(ctx).
			Model(&models.Message{}).
			Where("user_id = ? AND status = ? AND trigger_type = ?",
				user.ID, models.MessageStatusDraft, models.TriggerInactivity).
			Order("id").
			Pluck("id", &ids).Error
	})
	if err != nil {
		e.logger.Error("Failed to list inactivity messages", "user_id", user.ID, "error", err.Error())
		return
	}

	e.logger.Info("Dispatching inactivity messages", "user_id", user.ID, "count", len(ids))

	for _, id := range ids {
		if _, err := e.dispatcher.Deliver(ctx, id); err != nil {
			e.logger.Error("Inactivity-triggered delivery failed", "message_id", id, "error", err.Error())
		}
	}
}
