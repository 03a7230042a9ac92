package messages

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/afterwords-app/afterwords/internal/notify"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type recipientRequest struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Relationship string `json:"relationship"`
}

// CreateRecipientHandler adds a recipient and sends the contact-verification
// email. Verification is best-effort; the recipient is usable either way.
func CreateRecipientHandler(db *gorm.DB, mailer notify.Mailer, logger *slog.Logger, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var req recipientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		recipient := models.Recipient{
			UserID:            userID,
			Name:              req.Name,
			Email:             req.Email,
			Relationship:      req.Relationship,
			VerificationToken: uuid.New().String(),
		}
		if err := db.Create(&recipient).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create recipient"})
			return
		}

		sendVerification(c, db, mailer, logger, baseURL, &recipient)

		c.JSON(http.StatusCreated, recipient)
	}
}

// ListRecipientsHandler lists the caller's recipients
func ListRecipientsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var recipients []models.Recipient
		if err := db.Where("user_id = ?", userID).Order("name").Find(&recipients).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list recipients"})
			return
		}
		c.JSON(http.StatusOK, recipients)
	}
}

// DeleteRecipientHandler removes a recipient and its message links
func DeleteRecipientHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var recipient models.Recipient
		if err := db.Where("user_id = ?", userID).First(&recipient, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
			return
		}

		if err := db.Model(&recipient).Association("Messages").Clear(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unlink recipient"})
			return
		}
		if err := db.Delete(&recipient).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete recipient"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ResendVerificationHandler re-sends the contact-verification email
func ResendVerificationHandler(db *gorm.DB, mailer notify.Mailer, logger *slog.Logger, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var recipient models.Recipient
		if err := db.Where("user_id = ?", userID).First(&recipient, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
			return
		}
		if recipient.Verified {
			c.JSON(http.StatusConflict, gin.H{"error": "recipient already verified"})
			return
		}

		sendVerification(c, db, mailer, logger, baseURL, &recipient)
		c.JSON(http.StatusAccepted, gin.H{"status": "verification sent"})
	}
}

// VerifyRecipientHandler is the public landing for verification links
func VerifyRecipientHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
			return
		}

		var recipient models.Recipient
		if err := db.Where("verification_token = ?", token).First(&recipient).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown verification token"})
			return
		}

		if !recipient.Verified {
			if err := db.Model(&recipient).Update("verified", true).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "verified"})
	}
}

func sendVerification(c *gin.Context, db *gorm.DB, mailer notify.Mailer, logger *slog.Logger, baseURL string, recipient *models.Recipient) {
	var owner models.User
	if err := db.First(&owner, recipient.UserID).Error; err != nil {
		logger.Warn("Failed to load recipient owner", "recipient_id", recipient.ID, "error", err.Error())
		return
	}

	email, err := notify.RenderContactVerification(recipient.Email, notify.ContactVerificationData{
		RecipientName: recipient.Name,
		SenderName:    owner.Name,
		VerifyURL:     baseURL + "/verify/" + recipient.VerificationToken,
	})
	if err != nil {
		logger.Error("Failed to render verification email", "recipient_id", recipient.ID, "error", err.Error())
		return
	}

	ctx := c.Request.Context()
	outcome := models.OutcomeSuccess
	if _, err := mailer.Send(ctx, email); err != nil {
		outcome = models.OutcomeFailed
		logger.Warn("Failed to send verification email", "recipient_id", recipient.ID, "error", err.Error())
	}

	db.Create(&models.ActivityLog{
		UserID:         recipient.UserID,
		Action:         models.ActionVerificationSent,
		RecipientEmail: recipient.Email,
		Outcome:        outcome,
		CreatedAt:      time.Now(),
	})
}
