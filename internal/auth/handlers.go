package auth

import (
	"log"
	"net/http"
	"time"

	"github.com/afterwords-app/afterwords/internal/activity"
	"github.com/afterwords-app/afterwords/internal/checks"
	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/markbates/goth/gothic"
	"gorm.io/gorm"
)

// HandleLogin initiates the Google OAuth flow
func HandleLogin(c *gin.Context) {
	// Gothic requires the "provider" query parameter
	q := c.Request.URL.Query()
	q.Add("provider", "google")
	c.Request.URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// HandleCallback completes the OAuth flow, upserts the user, and stores info
// in the session. Sign-in is the respond hook of the inactivity machinery: it
// records activity and closes any pending inactivity check.
func HandleCallback(db *gorm.DB, tracker *activity.Tracker, checkSvc *checks.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Gothic requires the "provider" query parameter
		q := c.Request.URL.Query()
		q.Add("provider", "google")
		c.Request.URL.RawQuery = q.Encode()

		gothUser, err := gothic.CompleteUserAuth(c.Writer, c.Request)
		if err != nil {
			log.Printf("Auth error: %v", err)
			c.Redirect(http.StatusFound, "/login?error=auth_failed")
			return
		}

		now := time.Now()
		var user models.User
		result := db.Where("email = ?", gothUser.Email).First(&user)
		if result.Error == gorm.ErrRecordNotFound {
			user = models.User{
				Email:                   gothUser.Email,
				Name:                    gothUser.Name,
				LastActiveAt:            &now,
				InactivityThresholdDays: models.DefaultInactivityThresholdDays,
				LastLoginAt:             &now,
			}
			if err := db.Create(&user).Error; err != nil {
				log.Printf("User create error: %v", err)
				c.Redirect(http.StatusFound, "/login?error=user_failed")
				return
			}
		} else if result.Error == nil {
			db.Model(&user).Updates(map[string]interface{}{
				"name":          gothUser.Name,
				"last_login_at": now,
			})
		} else {
			log.Printf("User lookup error: %v", result.Error)
			c.Redirect(http.StatusFound, "/login?error=user_failed")
			return
		}

		ctx := c.Request.Context()
		tracker.Record(ctx, user.ID)
		if err := checkSvc.Respond(ctx, user.ID); err != nil {
			// Sign-in still succeeds; the next sweep sees the fresh last_active.
			log.Printf("Check respond error for user %d: %v", user.ID, err)
		}
		db.Create(&models.ActivityLog{
			UserID:    user.ID,
			Action:    models.ActionActivityRecorded,
			Outcome:   models.OutcomeSuccess,
			CreatedAt: now,
		})

		// Store user info in session
		session := sessions.Default(c)
		session.Set("db_user_id", user.ID)
		session.Set("user_email", gothUser.Email)
		session.Set("user_name", gothUser.Name)

		if err := session.Save(); err != nil {
			log.Printf("Session save error: %v", err)
			c.Redirect(http.StatusFound, "/login?error=session_failed")
			return
		}

		log.Printf("User authenticated: %s (%s)", gothUser.Name, gothUser.Email)
		c.Redirect(http.StatusFound, "/dashboard")
	}
}

// HandleLogout clears the session and redirects to login
func HandleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()

	if err := session.Save(); err != nil {
		log.Printf("Session clear error: %v", err)
	}

	c.Redirect(http.StatusFound, "/login")
}
