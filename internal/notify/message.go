// Package notify delivers one-time codes by email through SES, SMTP, Resend
// or the application log, with ordered fallback between providers.
package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/BradenHooton/passcode/internal/models"
)

// Message is a rendered code email
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type messageData struct {
	Heading   string
	Intro     string
	Code      string
	ExpiresAt string
}

var subjects = map[models.Purpose]string{
	models.PurposeSignup:        "Your sign-up verification code",
	models.PurposePasswordReset: "Your password reset code",
}

var intros = map[models.Purpose]string{
	models.PurposeSignup:        "Use the code below to finish creating your account.",
	models.PurposePasswordReset: "Use the code below to reset your password. If you did not ask for a reset, you can ignore this email.",
}

var textTemplate = texttemplate.Must(texttemplate.New("code.txt").Parse(`{{.Heading}}

{{.Intro}}

Your code: {{.Code}}

This code expires at {{.ExpiresAt}} and can only be used once.
Never share this code with anyone.

This is an automated message. Please do not reply to this email.
`))

var htmlTemplate = htmltemplate.Must(htmltemplate.New("code.html").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; font-weight: bold; letter-spacing: 6px; font-family: 'Courier New', monospace; text-align: center; padding: 20px; background-color: #f3f4f6; border-radius: 8px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Heading}}</h1>
        <p>{{.Intro}}</p>
        <div class="code">{{.Code}}</div>
        <p>This code expires at <strong>{{.ExpiresAt}}</strong> and can only be used once. Never share this code with anyone.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`))

// RenderCodeMessage builds the email for a code issued for purpose
func RenderCodeMessage(email string, purpose models.Purpose, code string, expiresAt time.Time) (*Message, error) {
	subject, ok := subjects[purpose]
	if !ok {
		return nil, fmt.Errorf("no message template for purpose %q", purpose)
	}

	data := messageData{
		Heading:   subject,
		Intro:     intros[purpose],
		Code:      code,
		ExpiresAt: expiresAt.UTC().Format("15:04 MST on Jan 2, 2006"),
	}

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}

	return &Message{
		To:      email,
		Subject: subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
