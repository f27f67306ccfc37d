// Package mail sends the application's notification emails.
//
// Services depend on the Sender interface only. Production wires an
// SMTPSender; development (no SMTP host configured) wires a LogSender that
// writes the message, confirmation link included, to the log.
package mail

import (
	"context"
	"fmt"
	"strings"
)

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers messages. Send blocks until the transport accepted the
// message or failed.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ConfirmationMessage builds the email-confirmation mail. changed selects
// the wording used after an email change.
func ConfirmationMessage(to, link string, changed bool) Message {
	subject := "Confirm your email"
	intro := "Thanks for registering on the IVR board."
	if changed {
		subject = "Confirm your new email"
		intro = "Your email address on the IVR board was changed."
	}

	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\nOpen the link below to confirm the address:\n")
	b.WriteString(link)
	b.WriteString("\n\nIf you did not request this, ignore this message.\n")

	return Message{To: []string{to}, Subject: subject, Body: b.String()}
}

// CredentialsMessage builds the credential-recovery mail carrying a freshly
// generated password.
func CredentialsMessage(to, nickname, password string) Message {
	body := fmt.Sprintf(
		"Your login details for the IVR board:\n\nNickname: %s\nPassword: %s\n\nChange the password after signing in.\n",
		nickname, password,
	)
	return Message{To: []string{to}, Subject: "Your login details", Body: body}
}
