// Package notify is the client side of the email collaborator: a stateless
// sending endpoint that accepts a rendered {to, subject, html, text} payload
// and returns a provider message id. Template rendering happens here; the
// transport (edge-function webhook or SMTP) is chosen by configuration.
package notify

import "context"

// Template names understood by this package.
const (
	TemplateInactivityWarning   = "inactivity-warning"
	TemplateMessageDelivery     = "message-delivery"
	TemplateContactVerification = "contact-verification"
)

// Email is one rendered outbound email.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Mailer sends a rendered email and returns the provider message id.
// Implementations are synchronous request/response with no intermediate state.
type Mailer interface {
	Send(ctx context.Context, email Email) (string, error)
}

// InactivityWarningData feeds the inactivity-warning template.
type InactivityWarningData struct {
	Name          string
	DaysInactive  int
	ThresholdDays int
	// Deadline is empty on pre-threshold warnings and set once a check is open.
	Deadline   string
	ConfirmURL string
}

// MessageDeliveryData feeds the message-delivery template.
type MessageDeliveryData struct {
	RecipientName string
	SenderName    string
	Title         string
	ViewURL       string
	HasPIN        bool
}

// ContactVerificationData feeds the contact-verification template.
type ContactVerificationData struct {
	RecipientName string
	SenderName    string
	VerifyURL     string
}
