package messages

import (
	"net/http"

	"github.com/afterwords-app/afterwords/internal/crypto"
	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ViewMessageHandler serves a delivered message to a recipient holding a
// signed view link. Drafts are never viewable here, whatever the link says.
func ViewMessageHandler(db *gorm.DB, signer *crypto.LinkSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		recipientEmail := c.Query("r")
		sig := c.Query("sig")

		if recipientEmail == "" || sig == "" || !signer.Verify(token, recipientEmail, sig) {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid view link"})
			return
		}

		var msg models.Message
		err := db.Preload("User").Where("view_token = ?", token).First(&msg).Error
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}

		if msg.Status != models.MessageStatusDelivered {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}

		if msg.PinHash != "" {
			pin := c.Query("pin")
			if pin == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "pin required", "pin_required": true})
				return
			}
			if !crypto.CheckPIN(msg.PinHash, pin) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect pin", "pin_required": true})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"title":          msg.Title,
			"body":           msg.Body,
			"sender":         msg.User.Name,
			"delivered_at":   msg.DeliveredAt,
			"attachment_url": msg.AttachmentURL,
		})
	}
}
