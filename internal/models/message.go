package models

import (
	"time"

	"github.com/afterwords-app/afterwords/internal/crypto"
	"gorm.io/gorm"
)

var encryptor *crypto.MessageEncryptor

// InitEncryption initializes the message body encryptor for the models package.
// Must be called before any database operations involving Message.
func InitEncryption(encryptionKey string) error {
	var err error
	encryptor, err = crypto.NewMessageEncryptor(encryptionKey)
	return err
}

// Trigger type constants
const (
	TriggerInactivity = "inactivity"
	TriggerDate       = "date"
	TriggerManual     = "manual"
)

// Message status constants. Delivery is one-way: a message never returns to
// draft once delivered.
const (
	MessageStatusDraft     = "draft"
	MessageStatusDelivered = "delivered"
)

// Message represents a stored legacy message awaiting its delivery trigger
type Message struct {
	gorm.Model
	UserID uint `gorm:"not null;index"`
	User   User `gorm:"constraint:OnDelete:CASCADE;"`

	Title string `gorm:"not null;default:''"`
	Body  string `gorm:"type:text"` // stored encrypted

	TriggerType string     `gorm:"not null;default:'manual';index"`
	TriggerDate *time.Time `gorm:"index"`

	Status      string `gorm:"not null;default:'draft';index"`
	DeliveredAt *time.Time

	// ViewToken identifies the message in recipient view links.
	ViewToken string `gorm:"not null;uniqueIndex"`

	// PinHash, when set, gates the recipient view behind a PIN (bcrypt).
	PinHash string `gorm:"type:text"`

	// AttachmentURL points at an externally stored recording, if any.
	AttachmentURL string `gorm:"not null;default:''"`

	Recipients []Recipient `gorm:"many2many:message_recipients;"`
}

// Deliverable reports whether the message can still be handed to the dispatcher.
func (m *Message) Deliverable() bool {
	return m.Status == MessageStatusDraft
}

// BeforeSave encrypts the body before saving to database.
// Always encrypts non-empty bodies (GCM produces different output each time due to random nonce).
func (m *Message) BeforeSave(tx *gorm.DB) error {
	if encryptor == nil {
		// Allow operations without encryption (e.g., for testing or if encryption not initialized)
		return nil
	}

	if m.Body != "" {
		encrypted, err := encryptor.Encrypt(m.Body)
		if err != nil {
			return err
		}
		m.Body = encrypted
	}

	return nil
}

// AfterSave restores the plaintext body after BeforeSave swapped in the
// ciphertext, so a just-created or just-updated struct reads the same as a
// loaded one. Only the stored column carries ciphertext.
func (m *Message) AfterSave(tx *gorm.DB) error {
	return m.AfterFind(tx)
}

// AfterFind decrypts the body after loading from database
func (m *Message) AfterFind(tx *gorm.DB) error {
	if encryptor == nil {
		// Allow operations without encryption
		return nil
	}

	if m.Body != "" {
		decrypted, err := encryptor.Decrypt(m.Body)
		if err != nil {
			return err
		}
		m.Body = decrypted
	}

	return nil
}
