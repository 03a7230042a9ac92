// Package delivery performs recipient-by-recipient message delivery and owns
// the draft → delivered status transition.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/afterwords-app/afterwords/internal/crypto"
	"github.com/afterwords-app/afterwords/internal/database"
	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/afterwords-app/afterwords/internal/notify"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Result summarizes one delivery run over a message's recipients.
type Result struct {
	Delivered int
	Failed    []string // recipient emails that failed after retry
}

// Dispatcher fans a message out to its recipients. At-least-once semantics:
// the status flips to delivered after the first successful recipient, and a
// recipient failure never blocks the others. The stricter all-recipients
// policy was considered and deliberately not adopted; reaching whoever can be
// reached beats delivering to nobody.
type Dispatcher struct {
	db      *gorm.DB
	mailer  notify.Mailer
	signer  *crypto.LinkSigner
	logger  *slog.Logger
	baseURL string

	now func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(db *gorm.DB, mailer notify.Mailer, signer *crypto.LinkSigner, logger *slog.Logger, baseURL string) *Dispatcher {
	return &Dispatcher{
		db:      db,
		mailer:  mailer,
		signer:  signer,
		logger:  logger,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// Deliver sends the message to all linked recipients. Re-reads the message
// state first: delivering an already-delivered message is a no-op, which
// makes sweep retries and the missed-check handoff idempotent.
func (d *Dispatcher) Deliver(ctx context.Context, messageID uint) (Result, error) {
	var msg models.Message
	err := database.Retry(func() error {
		return d.db.WithContext(ctx).
			Preload("Recipients").
			Preload("User").
			First(&msg, messageID).Error
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to load message %d: %w", messageID, err)
	}

	if !msg.Deliverable() {
		d.logger.Info("Message not deliverable, skipping", "message_id", msg.ID, "status", msg.Status)
		return Result{}, nil
	}

	if len(msg.Recipients) == 0 {
		d.logger.Warn("Message has no recipients", "message_id", msg.ID)
		return Result{}, nil
	}

	var result Result
	for _, recipient := range msg.Recipients {
		if err := d.sendToRecipient(ctx, &msg, &recipient); err != nil {
			result.Failed = append(result.Failed, recipient.Email)
			continue
		}

		result.Delivered++
		if result.Delivered == 1 {
			d.markDelivered(ctx, &msg)
		}
	}

	d.logger.Info("Delivery run complete",
		"message_id", msg.ID,
		"delivered", result.Delivered,
		"failed", len(result.Failed),
	)
	return result, nil
}

// sendToRecipient renders and sends one delivery email, retrying once. Every
// attempt lands in the activity log with the outcome.
func (d *Dispatcher) sendToRecipient(ctx context.Context, msg *models.Message, recipient *models.Recipient) error {
	email, err := notify.RenderMessageDelivery(recipient.Email, notify.MessageDeliveryData{
		RecipientName: recipient.Name,
		SenderName:    msg.User.Name,
		Title:         msg.Title,
		ViewURL:       d.viewURL(msg, recipient),
		HasPIN:        msg.PinHash != "",
	})
	if err != nil {
		d.logAttempt(ctx, msg, recipient, models.OutcomeFailed, err.Error())
		return err
	}

	providerID, err := d.mailer.Send(ctx, email)
	if err != nil {
		providerID, err = d.mailer.Send(ctx, email)
	}
	if err != nil {
		d.logger.Warn("Recipient delivery failed",
			"message_id", msg.ID,
			"recipient", recipient.Email,
			"error", err.Error(),
		)
		d.logAttempt(ctx, msg, recipient, models.OutcomeFailed, err.Error())
		return err
	}

	d.logAttempt(ctx, msg, recipient, models.OutcomeSuccess, providerID)
	return nil
}

// markDelivered flips draft to delivered with a conditional update, so two
// concurrent delivery runs cannot both record the transition.
func (d *Dispatcher) markDelivered(ctx context.Context, msg *models.Message) {
	now := d.now()
	var res *gorm.DB
	err := database.Retry(func() error {
		res = d.db.WithContext(ctx).
			Model(&models.Message{}).
			Where("id = ? AND status = ?", msg.ID, models.MessageStatusDraft).
			Updates(map[string]interface{}{
				"status":       models.MessageStatusDelivered,
				"delivered_at": now,
			})
		return res.Error
	})
	if err != nil {
		d.logger.Error("Failed to mark message delivered", "message_id", msg.ID, "error", err.Error())
		return
	}
	if res.RowsAffected == 0 {
		return
	}

	msg.Status = models.MessageStatusDelivered
	msg.DeliveredAt = &now

	entry := models.ActivityLog{
		UserID:    msg.UserID,
		Action:    models.ActionMessageDelivered,
		MessageID: &msg.ID,
		Outcome:   models.OutcomeSuccess,
		CreatedAt: now,
	}
	if err := d.db.WithContext(ctx).Create(&entry).Error; err != nil {
		d.logger.Warn("Failed to append delivery log", "message_id", msg.ID, "error", err.Error())
	}
}

// viewURL builds the signed, stable viewing link for one recipient.
func (d *Dispatcher) viewURL(msg *models.Message, recipient *models.Recipient) string {
	q := url.Values{}
	q.Set("r", recipient.Email)
	q.Set("sig", d.signer.Sign(msg.ViewToken, recipient.Email))
	return fmt.Sprintf("%s/view/%s?%s", d.baseURL, msg.ViewToken, q.Encode())
}

func (d *Dispatcher) logAttempt(ctx context.Context, msg *models.Message, recipient *models.Recipient, outcome, detail string) {
	entry := models.ActivityLog{
		UserID:         msg.UserID,
		Action:         models.ActionDeliveryAttempt,
		MessageID:      &msg.ID,
		RecipientEmail: recipient.Email,
		Outcome:        outcome,
		Detail:         datatypes.JSON([]byte(fmt.Sprintf(`{"detail":%q}`, detail))),
		CreatedAt:      d.now(),
	}
	if err := d.db.WithContext(ctx).Create(&entry).Error; err != nil {
		d.logger.Warn("Failed to append delivery attempt log",
			"message_id", msg.ID,
			"recipient", recipient.Email,
			"error", err.Error(),
		)
	}
}
