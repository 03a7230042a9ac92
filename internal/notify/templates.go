package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*.html templates/*.txt
var templatesFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templatesFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templatesFS, "templates/*.txt"))
)

// RenderInactivityWarning renders the inactivity-warning template pair.
func RenderInactivityWarning(to string, data InactivityWarningData) (Email, error) {
	subject := fmt.Sprintf("Are you still there, %s?", data.Name)
	return render(to, subject, TemplateInactivityWarning, data)
}

// RenderMessageDelivery renders the message-delivery template pair.
func RenderMessageDelivery(to string, data MessageDeliveryData) (Email, error) {
	subject := fmt.Sprintf("%s left you a message", data.SenderName)
	return render(to, subject, TemplateMessageDelivery, data)
}

// RenderContactVerification renders the contact-verification template pair.
func RenderContactVerification(to string, data ContactVerificationData) (Email, error) {
	subject := fmt.Sprintf("%s added you as a recipient on Afterwords", data.SenderName)
	return render(to, subject, TemplateContactVerification, data)
}

func render(to, subject, name string, data any) (Email, error) {
	var html, text bytes.Buffer

	if err := htmlTemplates.ExecuteTemplate(&html, name+".html", data); err != nil {
		return Email{}, fmt.Errorf("failed to render %s html: %w", name, err)
	}
	if err := textTemplates.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return Email{}, fmt.Errorf("failed to render %s text: %w", name, err)
	}

	return Email{
		To:      to,
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
