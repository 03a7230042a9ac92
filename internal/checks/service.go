// Package checks implements the inactivity check state machine.
//
// A check is pending from creation until the user signs in (responded) or the
// response deadline passes (missed). Both exits are terminal: a sign-in after
// a check went missed does not cancel delivery, it only resets the clock for
// the next threshold crossing. Status transitions use conditional updates
// (WHERE status = 'pending') so a concurrent sweep cannot double-fire.
package checks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afterwords-app/afterwords/internal/database"
	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/afterwords-app/afterwords/internal/notify"
	"gorm.io/gorm"
)

// WarningBand is how long before the threshold the warn-only emails begin.
const WarningBand = 7 * 24 * time.Hour

// warningInterval caps warn-only emails to one per rolling window, checked
// against the activity log.
const warningInterval = 24 * time.Hour

// Service owns all inactivity_checks rows.
type Service struct {
	db      *gorm.DB
	mailer  notify.Mailer
	logger  *slog.Logger
	baseURL string

	now func() time.Time
}

// NewService creates the check service.
func NewService(db *gorm.DB, mailer notify.Mailer, logger *slog.Logger, baseURL string) *Service {
	return &Service{
		db:      db,
		mailer:  mailer,
		logger:  logger,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// SweepUser runs the open / warn / expire logic for one user. It returns true
// only when a pending check transitioned to missed in this call; that is the
// single signal that hands the user off to the delivery dispatcher.
func (s *Service) SweepUser(ctx context.Context, user *models.User) (bool, error) {
	if user.LastActiveAt == nil {
		return false, nil
	}

	now := s.now()
	inactive := now.Sub(*user.LastActiveAt)
	threshold := user.InactivityThreshold()

	var pending models.InactivityCheck
	err := database.Retry(func() error {
		return s.db.WithContext(ctx).
			Where("user_id = ? AND status = ?", user.ID, models.CheckStatusPending).
			First(&pending).Error
	})
	switch {
	case err == nil:
		if now.After(pending.ResponseRequiredBy) {
			return s.expire(ctx, user, &pending)
		}
		// Deadline not reached; the warning went out when the check opened.
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No pending check; fall through to open/warn.
	default:
		return false, fmt.Errorf("failed to load pending check: %w", err)
	}

	// One check per inactivity episode: a terminal check that postdates the
	// user's last activity means this episode is already settled, and nothing
	// reopens until fresh activity restarts the clock.
	var last models.InactivityCheck
	err = database.Retry(func() error {
		return s.db.WithContext(ctx).
			Where("user_id = ?", user.ID).
			Order("id DESC").
			First(&last).Error
	})
	if err == nil && last.CreatedAt.After(*user.LastActiveAt) {
		return false, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to load check history: %w", err)
	}

	if inactive >= threshold {
		return false, s.open(ctx, user, now)
	}

	if inactive >= threshold-WarningBand {
		return false, s.warn(ctx, user, inactive, now)
	}

	return false, nil
}

// Respond closes the user's pending check on sign-in. A no-op when no pending
// check exists, and when the check already went missed.
func (s *Service) Respond(ctx context.Context, userID uint) error {
	now := s.now()
	res := s.db.WithContext(ctx).
		Model(&models.InactivityCheck{}).
		Where("user_id = ? AND status = ?", userID, models.CheckStatusPending).
		Updates(map[string]interface{}{
			"status":       models.CheckStatusResponded,
			"responded_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to respond to check: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	s.appendLog(ctx, models.ActivityLog{
		UserID:    userID,
		Action:    models.ActionCheckResponded,
		Outcome:   models.OutcomeSuccess,
		CreatedAt: now,
	})
	s.logger.Info("Inactivity check responded", "user_id", userID)
	return nil
}

// open creates a new pending check and sends the escalation warning. The
// partial unique index on inactivity_checks backs up the no-pending guard if
// two sweeps race here.
func (s *Service) open(ctx context.Context, user *models.User, now time.Time) error {
	check := models.InactivityCheck{
		UserID:             user.ID,
		Status:             models.CheckStatusPending,
		ResponseRequiredBy: now.Add(models.ResponseWindow),
	}
	if err := s.db.WithContext(ctx).Create(&check).Error; err != nil {
		// A concurrent sweep opened one first; nothing to do.
		s.logger.Warn("Failed to open inactivity check", "user_id", user.ID, "error", err.Error())
		return nil
	}

	s.appendLog(ctx, models.ActivityLog{
		UserID:    user.ID,
		Action:    models.ActionCheckCreated,
		Outcome:   models.OutcomeSuccess,
		CreatedAt: now,
	})
	s.logger.Info("Inactivity check created",
		"user_id", user.ID,
		"response_required_by", check.ResponseRequiredBy,
	)

	s.sendWarning(ctx, user, now, &check)
	return nil
}

// warn sends the pre-threshold warning, at most once per rolling 24h window.
// This path never creates a check.
func (s *Service) warn(ctx context.Context, user *models.User, inactive time.Duration, now time.Time) error {
	var recent int64
	err := database.Retry(func() error {
		return s.db.WithContext(ctx).
			Model(&models.ActivityLog{}).
			Where("user_id = ? AND action = ? AND created_at > ?",
				user.ID, models.ActionWarningSent, now.Add(-warningInterval)).
			Count(&recent).Error
	})
	if err != nil {
		return fmt.Errorf("failed to check warning history: %w", err)
	}
	if recent > 0 {
		return nil
	}

	s.sendWarning(ctx, user, now, nil)
	return nil
}

// sendWarning renders and sends the inactivity-warning email, retrying once
// on transient failure, and records the attempt in the activity log. The
// check parameter is nil on pre-threshold warnings.
func (s *Service) sendWarning(ctx context.Context, user *models.User, now time.Time, check *models.InactivityCheck) {
	data := notify.InactivityWarningData{
		Name:          user.Name,
		DaysInactive:  int(now.Sub(*user.LastActiveAt).Hours() / 24),
		ThresholdDays: user.InactivityThresholdDays,
		ConfirmURL:    s.baseURL + "/auth/login",
	}
	if check != nil {
		data.Deadline = check.ResponseRequiredBy.Format("January 2, 2006")
	}

	email, err := notify.RenderInactivityWarning(user.Email, data)
	if err != nil {
		s.logger.Error("Failed to render warning email", "user_id", user.ID, "error", err.Error())
		return
	}

	outcome := models.OutcomeSuccess
	if _, err := s.mailer.Send(ctx, email); err != nil {
		// One retry, then give up until the next sweep.
		if _, err = s.mailer.Send(ctx, email); err != nil {
			outcome = models.OutcomeFailed
			s.logger.Warn("Failed to send warning email", "user_id", user.ID, "error", err.Error())
		}
	}

	s.appendLog(ctx, models.ActivityLog{
		UserID:    user.ID,
		Action:    models.ActionWarningSent,
		Outcome:   outcome,
		CreatedAt: now,
	})
}

// expire flips pending to missed. Only the sweep that wins the conditional
// update reports expired=true, so delivery dispatches exactly once.
func (s *Service) expire(ctx context.Context, user *models.User, check *models.InactivityCheck) (bool, error) {
	// Retrying the conditional update is safe: a second run after a hidden
	// success matches zero rows.
	var res *gorm.DB
	err := database.Retry(func() error {
		res = s.db.WithContext(ctx).
			Model(&models.InactivityCheck{}).
			Where("id = ? AND status = ?", check.ID, models.CheckStatusPending).
			Update("status", models.CheckStatusMissed)
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to expire check: %w", err)
	}
	if res.RowsAffected == 0 {
		// Lost the race to another sweep, or the user responded in between.
		return false, nil
	}

	s.appendLog(ctx, models.ActivityLog{
		UserID:    user.ID,
		Action:    models.ActionCheckMissed,
		Outcome:   models.OutcomeSuccess,
		CreatedAt: s.now(),
	})
	s.logger.Info("Inactivity check missed", "user_id", user.ID, "check_id", check.ID)
	return true, nil
}

// appendLog writes an audit entry. Audit failures never fail the transition
// that produced them.
func (s *Service) appendLog(ctx context.Context, entry models.ActivityLog) {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Warn("Failed to append activity log", "user_id", entry.UserID, "action", entry.Action, "error", err.Error())
	}
}
