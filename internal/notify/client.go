package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WebhookMailer sends email through the serverless sending endpoint
type WebhookMailer struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	stubMode   bool
}

// NewWebhookMailer creates a new webhook mailer with the given configuration
func NewWebhookMailer(baseURL, secret string, stubMode bool) *WebhookMailer {
	return &WebhookMailer{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		stubMode:   stubMode,
	}
}

// Send posts the rendered email to the sending endpoint and returns the
// provider message id.
func (m *WebhookMailer) Send(ctx context.Context, email Email) (string, error) {
	if m.stubMode {
		// Pretend the provider accepted it; useful for local development
		// without an email endpoint configured.
		return "stub-" + uuid.New().String(), nil
	}

	jsonData, err := json.Marshal(email)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.baseURL+"/send", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-MAIL-SECRET", m.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("mail endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return result.ID, nil
}
