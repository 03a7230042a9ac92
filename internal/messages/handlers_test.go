package messages

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func initEncryption(t *testing.T) {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	require.NoError(t, models.InitEncryption(base64.StdEncoding.EncodeToString(key)))
}

func newAPIRouter(t *testing.T, db *gorm.DB, userID uint) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("db_user_id", userID)
		c.Next()
	})
	router.POST("/messages", CreateMessageHandler(db))
	router.GET("/messages/:id", GetMessageHandler(db))
	router.PUT("/messages/:id", UpdateMessageHandler(db))
	return router
}

func doJSON(router *gin.Engine, method, path, payload string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestCreateMessage_ResponseBodyStaysPlaintext(t *testing.T) {
	db := newTestDB(t)
	initEncryption(t)

	user := &models.User{Email: "u@example.com", Name: "Alex"}
	require.NoError(t, db.Create(user).Error)
	recipient := &models.Recipient{UserID: user.ID, Name: "Sam", Email: "sam@example.com"}
	require.NoError(t, db.Create(recipient).Error)

	router := newAPIRouter(t, db, user.ID)

	plaintext := "Tell the dog I loved her."
	payload := fmt.Sprintf(`{"title":"For Sam","body":%q,"trigger_type":"manual","recipient_ids":[%d]}`,
		plaintext, recipient.ID)

	w := doJSON(router, http.MethodPost, "/messages", payload)
	require.Equal(t, http.StatusCreated, w.Code)

	var created messageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, plaintext, created.Body, "the caller must get back what they sent")

	// At rest the column still holds ciphertext.
	var raw string
	require.NoError(t, db.Raw("SELECT body FROM messages WHERE id = ?", created.ID).Scan(&raw).Error)
	assert.NotEqual(t, plaintext, raw)
	assert.NotEmpty(t, raw)

	// And a fresh read decrypts to the same plaintext.
	w = doJSON(router, http.MethodGet, fmt.Sprintf("/messages/%d", created.ID), "")
	require.Equal(t, http.StatusOK, w.Code)

	var fetched messageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, plaintext, fetched.Body)
}

func TestUpdateMessage_ResponseBodyStaysPlaintext(t *testing.T) {
	db := newTestDB(t)
	initEncryption(t)

	user := &models.User{Email: "u@example.com", Name: "Alex"}
	require.NoError(t, db.Create(user).Error)
	recipient := &models.Recipient{UserID: user.ID, Name: "Sam", Email: "sam@example.com"}
	require.NoError(t, db.Create(recipient).Error)

	router := newAPIRouter(t, db, user.ID)

	payload := fmt.Sprintf(`{"title":"For Sam","body":"first draft","trigger_type":"manual","recipient_ids":[%d]}`,
		recipient.ID)
	w := doJSON(router, http.MethodPost, "/messages", payload)
	require.Equal(t, http.StatusCreated, w.Code)

	var created messageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	payload = fmt.Sprintf(`{"title":"For Sam","body":"changed my mind","trigger_type":"manual","recipient_ids":[%d]}`,
		recipient.ID)
	w = doJSON(router, http.MethodPut, fmt.Sprintf("/messages/%d", created.ID), payload)
	require.Equal(t, http.StatusOK, w.Code)

	var updated messageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "changed my mind", updated.Body)

	var raw string
	require.NoError(t, db.Raw("SELECT body FROM messages WHERE id = ?", created.ID).Scan(&raw).Error)
	assert.NotEqual(t, "changed my mind", raw)
}
