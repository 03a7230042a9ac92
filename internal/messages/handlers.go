// Package messages exposes the JSON API for composing messages, managing
// recipients, manual release, and the public recipient view.
package messages

import (
	"net/http"
	"time"

	"github.com/afterwords-app/afterwords/internal/crypto"
	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/afterwords-app/afterwords/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// currentUserID pulls the authenticated user's database id from the gin
// context (set by the auth middleware).
func currentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get("db_user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

type messageRequest struct {
	Title         string     `json:"title" binding:"required"`
	Body          string     `json:"body"`
	TriggerType   string     `json:"trigger_type" binding:"required,oneof=inactivity date manual"`
	TriggerDate   *time.Time `json:"trigger_date"`
	PIN           string     `json:"pin"`
	AttachmentURL string     `json:"attachment_url"`
	RecipientIDs  []uint     `json:"recipient_ids" binding:"required,min=1"`
}

type messageResponse struct {
	ID            uint       `json:"id"`
	Title         string     `json:"title"`
	Body          string     `json:"body,omitempty"`
	TriggerType   string     `json:"trigger_type"`
	TriggerDate   *time.Time `json:"trigger_date,omitempty"`
	Status        string     `json:"status"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	HasPIN        bool       `json:"has_pin"`
	AttachmentURL string     `json:"attachment_url,omitempty"`
	Recipients    []uint     `json:"recipient_ids"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toResponse(m *models.Message, includeBody bool) messageResponse {
	resp := messageResponse{
		ID:            m.ID,
		Title:         m.Title,
		TriggerType:   m.TriggerType,
		TriggerDate:   m.TriggerDate,
		Status:        m.Status,
		DeliveredAt:   m.DeliveredAt,
		HasPIN:        m.PinHash != "",
		AttachmentURL: m.AttachmentURL,
		CreatedAt:     m.CreatedAt,
	}
	if includeBody {
		resp.Body = m.Body
	}
	for _, r := range m.Recipients {
		resp.Recipients = append(resp.Recipients, r.ID)
	}
	return resp
}

// CreateMessageHandler creates a draft message
func CreateMessageHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if req.TriggerType == models.TriggerDate && req.TriggerDate == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "trigger_date is required for date triggers"})
			return
		}

		// Recipients must belong to the caller.
		var recipients []models.Recipient
		if err := db.Where("user_id = ? AND id IN ?", userID, req.RecipientIDs).Find(&recipients).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve recipients"})
			return
		}
		if len(recipients) != len(req.RecipientIDs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown recipient"})
			return
		}

		msg := models.Message{
			UserID:        userID,
			Title:         req.Title,
			Body:          req.Body,
			TriggerType:   req.TriggerType,
			TriggerDate:   req.TriggerDate,
			Status:        models.MessageStatusDraft,
			ViewToken:     uuid.New().String(),
			AttachmentURL: req.AttachmentURL,
			Recipients:    recipients,
		}

		if req.PIN != "" {
			hash, err := crypto.HashPIN(req.PIN)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash pin"})
				return
			}
			msg.PinHash = hash
		}

		if err := db.Create(&msg).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create message"})
			return
		}

		c.JSON(http.StatusCreated, toResponse(&msg, true))
	}
}

// ListMessagesHandler lists the caller's messages
func ListMessagesHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var msgs []models.Message
		if err := db.Preload("Recipients").Where("user_id = ?", userID).Order("id DESC").Find(&msgs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
			return
		}

		resp := make([]messageResponse, 0, len(msgs))
		for i := range msgs {
			resp = append(resp, toResponse(&msgs[i], false))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// GetMessageHandler returns one of the caller's messages, body included
func GetMessageHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var msg models.Message
		if err := db.Preload("Recipients").Where("user_id = ?", userID).First(&msg, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}

		c.JSON(http.StatusOK, toResponse(&msg, true))
	}
}

// UpdateMessageHandler updates a draft message. Delivered messages are
// immutable.
func UpdateMessageHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var msg models.Message
		if err := db.Where("user_id = ?", userID).First(&msg, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		if !msg.Deliverable() {
			c.JSON(http.StatusConflict, gin.H{"error": "delivered messages cannot be edited"})
			return
		}

		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.TriggerType == models.TriggerDate && req.TriggerDate == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "trigger_date is required for date triggers"})
			return
		}

		var recipients []models.Recipient
		if err := db.Where("user_id = ? AND id IN ?", userID, req.RecipientIDs).Find(&recipients).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve recipients"})
			return
		}
		if len(recipients) != len(req.RecipientIDs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown recipient"})
			return
		}

		msg.Title = req.Title
		msg.Body = req.Body
		msg.TriggerType = req.TriggerType
		msg.TriggerDate = req.TriggerDate
		msg.AttachmentURL = req.AttachmentURL
		if req.PIN != "" {
			hash, err := crypto.HashPIN(req.PIN)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash pin"})
				return
			}
			msg.PinHash = hash
		}

		if err := db.Save(&msg).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update message"})
			return
		}
		if err := db.Model(&msg).Association("Recipients").Replace(recipients); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update recipients"})
			return
		}

		msg.Recipients = recipients
		c.JSON(http.StatusOK, toResponse(&msg, true))
	}
}

// DeleteMessageHandler deletes a draft message. Delivered messages stay for
// the audit trail.
func DeleteMessageHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var msg models.Message
		if err := db.Where("user_id = ?", userID).First(&msg, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		if !msg.Deliverable() {
			c.JSON(http.StatusConflict, gin.H{"error": "delivered messages cannot be deleted"})
			return
		}

		if err := db.Delete(&msg).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ReleaseMessageHandler is the manual trigger: it enqueues delivery through
// the dispatcher, the same entry point the sweeps use, so the draft →
// delivered invariants hold.
func ReleaseMessageHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var msg models.Message
		if err := db.Where("user_id = ?", userID).First(&msg, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		if msg.TriggerType != models.TriggerManual {
			c.JSON(http.StatusConflict, gin.H{"error": "only manual-trigger messages can be released"})
			return
		}
		if !msg.Deliverable() {
			c.JSON(http.StatusConflict, gin.H{"error": "message already delivered"})
			return
		}

		if err := worker.EnqueueDeliverMessage(msg.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue delivery"})
			return
		}

		db.Create(&models.ActivityLog{
			UserID:    msg.UserID,
			Action:    models.ActionManualRelease,
			MessageID: &msg.ID,
			Outcome:   models.OutcomeSuccess,
			CreatedAt: time.Now(),
		})

		c.JSON(http.StatusAccepted, gin.H{"status": "release enqueued"})
	}
}
