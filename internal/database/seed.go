package database

import (
	"log"
	"time"

	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedDevData populates the database with development test data.
// Idempotent: skips if data already exists.
func SeedDevData(db *gorm.DB) error {
	var existingUser models.User
	result := db.Where("email = ?", "dev@afterwords.local").First(&existingUser)
	if result.Error == nil {
		log.Println("Seed data already exists, skipping")
		return nil
	}

	// Dev user whose last activity is already past the warning band, so the
	// inactivity sweep has something to chew on locally.
	lastActive := time.Now().Add(-25 * 24 * time.Hour)
	user := models.User{
		Email:                   "dev@afterwords.local",
		Name:                    "Dev User",
		LastActiveAt:            &lastActive,
		InactivityThresholdDays: 30,
		TrustedContactEmail:     "trusted@afterwords.local",
	}

	if err := db.Create(&user).Error; err != nil {
		return err
	}

	recipient := models.Recipient{
		UserID:       user.ID,
		Name:         "Sam Example",
		Email:        "sam@example.com",
		Relationship: "sibling",
	}

	if err := db.Create(&recipient).Error; err != nil {
		return err
	}

	messages := []models.Message{
		{
			UserID:      user.ID,
			Title:       "If you are reading this",
			Body:        "There are things I never got around to saying in person.",
			TriggerType: models.TriggerInactivity,
			ViewToken:   uuid.New().String(),
			Recipients:  []models.Recipient{recipient},
		},
		{
			UserID:      user.ID,
			Title:       "Happy 40th birthday",
			Body:        "Scheduled years ahead, as promised.",
			TriggerType: models.TriggerDate,
			TriggerDate: timePtr(time.Now().Add(48 * time.Hour)),
			ViewToken:   uuid.New().String(),
			Recipients:  []models.Recipient{recipient},
		},
		{
			UserID:      user.ID,
			Title:       "For the trusted contact to release",
			Body:        "Only goes out when someone I trust says so.",
			TriggerType: models.TriggerManual,
			ViewToken:   uuid.New().String(),
			Recipients:  []models.Recipient{recipient},
		},
	}

	for i := range messages {
		if err := db.Create(&messages[i]).Error; err != nil {
			return err
		}
	}

	log.Println("Seeded dev data: 1 user, 1 recipient, 3 messages")
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
