package models

import "gorm.io/gorm"

// Recipient is a person a user can address messages to. Linked to messages
// through the message_recipients join table.
type Recipient struct {
	gorm.Model
	UserID uint `gorm:"not null;index"`
	User   User `gorm:"constraint:OnDelete:CASCADE;"`

	Name         string `gorm:"not null"`
	Email        string `gorm:"not null;index"`
	Relationship string `gorm:"not null;default:''"`

	// Verified is set once the recipient confirms the contact-verification email.
	Verified          bool   `gorm:"not null;default:false"`
	VerificationToken string `gorm:"not null;default:''"`

	Messages []Message `gorm:"many2many:message_recipients;"`
}
