package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/afterwords-app/afterwords/internal/crypto"
	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/afterwords-app/afterwords/internal/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// failingMailer fails a configurable number of times per recipient before
// succeeding.
type failingMailer struct {
	mu       sync.Mutex
	sent     []notify.Email
	failures map[string]int
}

func (f *failingMailer) Send(ctx context.Context, email notify.Email) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[email.To] > 0 {
		f.failures[email.To]--
		return "", errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, email)
	return "provider-id", nil
}

func (f *failingMailer) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var to []string
	for _, e := range f.sent {
		to = append(to, e.To)
	}
	return to
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Recipient{},
		&models.Message{},
		&models.InactivityCheck{},
		&models.ActivityLog{},
	))
	return db
}

func newTestDispatcher(t *testing.T, db *gorm.DB, mailer notify.Mailer) *Dispatcher {
	t.Helper()
	signer, err := crypto.NewLinkSigner("test-signing-key")
	require.NoError(t, err)
	return NewDispatcher(db, mailer, signer, slog.Default(), "http://localhost:8080")
}

func seedMessage(t *testing.T, db *gorm.DB, recipientEmails ...string) *models.Message {
	t.Helper()

	user := &models.User{Email: "sender@example.com", Name: "Sender"}
	require.NoError(t, db.Create(user).Error)

	var recipients []models.Recipient
	for _, email := range recipientEmails {
		recipients = append(recipients, models.Recipient{
			UserID: user.ID,
			Name:   "Recipient",
			Email:  email,
		})
	}

	msg := &models.Message{
		UserID:      user.ID,
		Title:       "Goodbye",
		Body:        "Some last words.",
		TriggerType: models.TriggerInactivity,
		Status:      models.MessageStatusDraft,
		ViewToken:   uuid.New().String(),
		Recipients:  recipients,
	}
	require.NoError(t, db.Create(msg).Error)
	return msg
}

func TestDeliver_AllRecipientsSucceed(t *testing.T) {
	db := newTestDB(t)
	mailer := &failingMailer{failures: map[string]int{}}
	d := newTestDispatcher(t, db, mailer)

	msg := seedMessage(t, db, "a@example.com", "b@example.com")

	result, err := d.Deliver(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Delivered)
	assert.Empty(t, result.Failed)

	var reloaded models.Message
	require.NoError(t, db.First(&reloaded, msg.ID).Error)
	assert.Equal(t, models.MessageStatusDelivered, reloaded.Status)
	assert.NotNil(t, reloaded.DeliveredAt)
}

func TestDeliver_PartialFailureStillDelivers(t *testing.T) {
	db := newTestDB(t)
	// Recipient b fails the initial send and the retry.
	mailer := &failingMailer{failures: map[string]int{"b@example.com": 2}}
	d := newTestDispatcher(t, db, mailer)

	msg := seedMessage(t, db, "a@example.com", "b@example.com", "c@example.com")

	result, err := d.Deliver(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, []string{"b@example.com"}, result.Failed)

	var reloaded models.Message
	require.NoError(t, db.First(&reloaded, msg.ID).Error)
	assert.Equal(t, models.MessageStatusDelivered, reloaded.Status,
		"first successful recipient flips the status, failures do not block it")

	var failedLogs, successLogs int64
	db.Model(&models.ActivityLog{}).
		Where("message_id = ? AND action = ? AND outcome = ?", msg.ID, models.ActionDeliveryAttempt, models.OutcomeFailed).
		Count(&failedLogs)
	db.Model(&models.ActivityLog{}).
		Where("message_id = ? AND action = ? AND outcome = ?", msg.ID, models.ActionDeliveryAttempt, models.OutcomeSuccess).
		Count(&successLogs)
	assert.EqualValues(t, 1, failedLogs)
	assert.EqualValues(t, 2, successLogs)
}

func TestDeliver_RetryRecoversTransientFailure(t *testing.T) {
	db := newTestDB(t)
	// One failure, so the single retry succeeds.
	mailer := &failingMailer{failures: map[string]int{"a@example.com": 1}}
	d := newTestDispatcher(t, db, mailer)

	msg := seedMessage(t, db, "a@example.com")

	result, err := d.Deliver(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)
	assert.Empty(t, result.Failed)
}

func TestDeliver_AllFailKeepsDraft(t *testing.T) {
	db := newTestDB(t)
	mailer := &failingMailer{failures: map[string]int{"a@example.com": 2, "b@example.com": 2}}
	d := newTestDispatcher(t, db, mailer)

	msg := seedMessage(t, db, "a@example.com", "b@example.com")

	result, err := d.Deliver(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Delivered)
	assert.Len(t, result.Failed, 2)

	var reloaded models.Message
	require.NoError(t, db.First(&reloaded, msg.ID).Error)
	assert.Equal(t, models.MessageStatusDraft, reloaded.Status,
		"a message nobody received stays draft for the next sweep")
}

func TestDeliver_AlreadyDeliveredIsNoop(t *testing.T) {
	db := newTestDB(t)
	mailer := &failingMailer{failures: map[string]int{}}
	d := newTestDispatcher(t, db, mailer)

	msg := seedMessage(t, db, "a@example.com")

	_, err := d.Deliver(context.Background(), msg.ID)
	require.NoError(t, err)
	require.Len(t, mailer.sentTo(), 1)

	result, err := d.Deliver(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Delivered)
	assert.Len(t, mailer.sentTo(), 1, "re-delivery must not send anything")

	var deliveredLogs int64
	db.Model(&models.ActivityLog{}).
		Where("message_id = ? AND action = ?", msg.ID, models.ActionMessageDelivered).
		Count(&deliveredLogs)
	assert.EqualValues(t, 1, deliveredLogs)
}

func TestDeliver_EmailCarriesSignedViewLink(t *testing.T) {
	db := newTestDB(t)
	mailer := &failingMailer{failures: map[string]int{}}
	d := newTestDispatcher(t, db, mailer)

	msg := seedMessage(t, db, "a@example.com")

	_, err := d.Deliver(context.Background(), msg.ID)
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)

	assert.Contains(t, mailer.sent[0].Text, "/view/"+msg.ViewToken)
	assert.Contains(t, mailer.sent[0].Text, "sig=")
}

func TestDeliver_UnknownMessageReturnsError(t *testing.T) {
	db := newTestDB(t)
	mailer := &failingMailer{failures: map[string]int{}}
	d := newTestDispatcher(t, db, mailer)

	_, err := d.Deliver(context.Background(), 9999)
	assert.Error(t, err)
}

func TestDeliver_NoRecipients(t *testing.T) {
	db := newTestDB(t)
	mailer := &failingMailer{failures: map[string]int{}}
	d := newTestDispatcher(t, db, mailer)

	msg := seedMessage(t, db)

	result, err := d.Deliver(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Delivered)

	var reloaded models.Message
	require.NoError(t, db.First(&reloaded, msg.ID).Error)
	assert.Equal(t, models.MessageStatusDraft, reloaded.Status)
}
