// Package tasks holds the built-in task handlers registered by the worker
// binary.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"taskforge/internal/taskerr"
)

// TaskSendEmail is the registry name of the outbound email task.
const TaskSendEmail = "send_email"

// Mailer sends mail over SMTP with STARTTLS. Sending the same message
// twice is harmless beyond a duplicate email, which keeps the handler
// idempotent enough for at-least-once delivery.
type Mailer struct {
	server   string
	port     int
	username string
	password string
	from     string
}

func NewMailer(server string, port int, username, password, from string) *Mailer {
	return &Mailer{
		server:   server,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

type emailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    bool   `json:"html"`
}

// SendEmail is the send_email handler. Argument problems are permanent
// (retrying cannot fix a bad recipient); SMTP-level failures are transient.
func (m *Mailer) SendEmail(ctx context.Context, args json.RawMessage) error {
	var list []emailArgs
	if err := json.Unmarshal(args, &list); err != nil {
		return taskerr.Permanent(fmt.Errorf("send_email: decode args: %w", err))
	}
	if len(list) != 1 {
		return taskerr.Permanent(fmt.Errorf("send_email: want exactly 1 argument, got %d", len(list)))
	}

	e := list[0]
	if !strings.Contains(e.To, "@") {
		return taskerr.Permanent(fmt.Errorf("send_email: invalid recipient %q", e.To))
	}

	addr := fmt.Sprintf("%s:%d", m.server, m.port)
	auth := smtp.PlainAuth("", m.username, m.password, m.server)
	if err := smtp.SendMail(addr, auth, m.from, []string{e.To}, m.buildMessage(e)); err != nil {
		return taskerr.Transient(fmt.Errorf("send_email: smtp %s: %w", addr, err))
	}
	return nil
}

func (m *Mailer) buildMessage(e emailArgs) []byte {
	contentType := "text/plain; charset=UTF-8"
	if e.HTML {
		contentType = "text/html; charset=UTF-8"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", e.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	b.WriteString("\r\n")
	b.WriteString(e.Body)
	return []byte(b.String())
}
