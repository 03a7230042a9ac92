package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultInactivityThresholdDays is applied to new users who never adjust
// their settings.
const DefaultInactivityThresholdDays = 30

// User represents an application user with delivery settings and activity tracking
type User struct {
	gorm.Model
	Email string `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	Name  string `gorm:"not null;default:''"`

	// LastActiveAt drives the inactivity trigger machinery. Only the activity
	// tracker writes it.
	LastActiveAt *time.Time `gorm:"column:last_active;index"`

	// InactivityThresholdDays is the days of silence before an inactivity
	// check opens for this user.
	InactivityThresholdDays int `gorm:"column:inactivity_threshold;not null;default:30"`

	// TrustedContactEmail may release manual-trigger messages on the user's behalf.
	TrustedContactEmail string `gorm:"not null;default:''"`

	LastLoginAt *time.Time

	// Associations
	Messages         []Message         `gorm:"constraint:OnDelete:CASCADE;"`
	Recipients       []Recipient       `gorm:"constraint:OnDelete:CASCADE;"`
	InactivityChecks []InactivityCheck `gorm:"constraint:OnDelete:CASCADE;"`
}

// InactivityThreshold returns the user's threshold as a duration.
func (u *User) InactivityThreshold() time.Duration {
	days := u.InactivityThresholdDays
	if days <= 0 {
		days = DefaultInactivityThresholdDays
	}
	return time.Duration(days) * 24 * time.Hour
}
