package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookMailer_Send(t *testing.T) {
	var received Email
	var gotSecret string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/send", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		gotSecret = r.Header.Get("X-MAIL-SECRET")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"provider-123"}`))
	}))
	defer server.Close()

	mailer := NewWebhookMailer(server.URL, "topsecret", false)

	id, err := mailer.Send(context.Background(), Email{
		To:      "r@example.com",
		Subject: "Hello",
		HTML:    "<p>hi</p>",
		Text:    "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "provider-123", id)
	assert.Equal(t, "topsecret", gotSecret)
	assert.Equal(t, "r@example.com", received.To)
	assert.Equal(t, "Hello", received.Subject)
}

func TestWebhookMailer_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "provider exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	mailer := NewWebhookMailer(server.URL, "", false)

	_, err := mailer.Send(context.Background(), Email{To: "r@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookMailer_StubMode(t *testing.T) {
	mailer := NewWebhookMailer("", "", true)

	id, err := mailer.Send(context.Background(), Email{To: "r@example.com"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "stub-"))
}

func TestRenderInactivityWarning(t *testing.T) {
	email, err := RenderInactivityWarning("u@example.com", InactivityWarningData{
		Name:          "Alex",
		DaysInactive:  31,
		ThresholdDays: 30,
		Deadline:      "March 1, 2026",
		ConfirmURL:    "http://localhost:8080/auth/login",
	})
	require.NoError(t, err)

	assert.Equal(t, "u@example.com", email.To)
	assert.Contains(t, email.Subject, "Alex")
	assert.Contains(t, email.HTML, "March 1, 2026")
	assert.Contains(t, email.Text, "March 1, 2026")
	assert.Contains(t, email.Text, "http://localhost:8080/auth/login")
}

func TestRenderInactivityWarning_NoDeadline(t *testing.T) {
	email, err := RenderInactivityWarning("u@example.com", InactivityWarningData{
		Name:          "Alex",
		DaysInactive:  24,
		ThresholdDays: 30,
		ConfirmURL:    "http://localhost:8080/auth/login",
	})
	require.NoError(t, err)

	assert.NotContains(t, email.Text, "inactivity check is now open")
	assert.Contains(t, email.Text, "reset the clock")
}

func TestRenderMessageDelivery(t *testing.T) {
	email, err := RenderMessageDelivery("r@example.com", MessageDeliveryData{
		RecipientName: "Sam",
		SenderName:    "Alex",
		Title:         "If you are reading this",
		ViewURL:       "http://localhost:8080/view/abc?sig=xyz",
		HasPIN:        true,
	})
	require.NoError(t, err)

	assert.Contains(t, email.Subject, "Alex")
	assert.Contains(t, email.HTML, "If you are reading this")
	assert.Contains(t, email.Text, "http://localhost:8080/view/abc?sig=xyz")
	assert.Contains(t, email.Text, "PIN")
}

func TestRenderContactVerification(t *testing.T) {
	email, err := RenderContactVerification("r@example.com", ContactVerificationData{
		RecipientName: "Sam",
		SenderName:    "Alex",
		VerifyURL:     "http://localhost:8080/verify/tok",
	})
	require.NoError(t, err)

	assert.Contains(t, email.HTML, "http://localhost:8080/verify/tok")
	assert.Contains(t, email.Text, "Nothing has been sent to you yet")
}
