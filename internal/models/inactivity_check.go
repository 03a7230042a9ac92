package models

import (
	"time"

	"gorm.io/gorm"
)

// Inactivity check status constants. pending is the only live state; responded
// and missed are terminal.
const (
	CheckStatusPending   = "pending"
	CheckStatusResponded = "responded"
	CheckStatusMissed    = "missed"
)

// ResponseWindow is how long a user has to answer an inactivity check before
// it expires and delivery engages.
const ResponseWindow = 7 * 24 * time.Hour

// InactivityCheck is one time-boxed "are you still there?" confirmation window.
// At most one pending check exists per user; the partial unique index backs up
// the application-level guard.
type InactivityCheck struct {
	gorm.Model
	UserID uint `gorm:"not null;index;uniqueIndex:idx_inactivity_checks_one_pending,where:status = 'pending' AND deleted_at IS NULL"`
	User   User `gorm:"constraint:OnDelete:CASCADE;"`

	Status             string    `gorm:"not null;default:'pending';index"`
	ResponseRequiredBy time.Time `gorm:"not null"`
	RespondedAt        *time.Time
}
