package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity log action constants
const (
	ActionActivityRecorded = "activity_recorded"
	ActionCheckCreated     = "inactivity_check_created"
	ActionCheckResponded   = "inactivity_check_responded"
	ActionCheckMissed      = "inactivity_check_missed"
	ActionWarningSent      = "inactivity_warning_sent"
	ActionDeliveryAttempt  = "message_delivery_attempt"
	ActionMessageDelivered = "message_delivered"
	ActionManualRelease    = "message_manual_release"
	ActionVerificationSent = "contact_verification_sent"
)

// Activity log outcome constants
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// ActivityLog is the append-only audit trail. Entries are written by every
// state transition and never updated or deleted, so there is no gorm.Model
// here — no soft delete, no UpdatedAt.
type ActivityLog struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"not null;index"`

	Action string `gorm:"not null;index"`

	// MessageID and RecipientEmail are set on delivery attempts.
	MessageID      *uint  `gorm:"index"`
	RecipientEmail string `gorm:"not null;default:''"`

	Outcome string `gorm:"not null;default:''"`

	Detail datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;index"`
}
