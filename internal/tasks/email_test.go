package tasks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/taskerr"
)

func testMailer() *Mailer {
	return NewMailer("smtp.example.com", 587, "noreply@example.com", "secret", "noreply@example.com")
}

func TestSendEmail_PermanentOnBadArgs(t *testing.T) {
	m := testMailer()
	ctx := context.Background()

	tests := []struct {
		name string
		args json.RawMessage
	}{
		{name: "not json", args: json.RawMessage(`garbage`)},
		{name: "not a list", args: json.RawMessage(`{"to":"a@example.com"}`)},
		{name: "empty list", args: json.RawMessage(`[]`)},
		{name: "two arguments", args: json.RawMessage(`[{"to":"a@example.com"},{"to":"b@example.com"}]`)},
		{name: "missing recipient", args: json.RawMessage(`[{"subject":"hi"}]`)},
		{name: "recipient without at-sign", args: json.RawMessage(`[{"to":"not-an-address"}]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.SendEmail(ctx, tt.args)
			require.Error(t, err)
			assert.True(t, taskerr.IsPermanent(err), "argument problems must not be retried: %v", err)
		})
	}
}

func TestBuildMessage_PlainText(t *testing.T) {
	m := testMailer()
	msg := string(m.buildMessage(emailArgs{
		To:      "a@example.com",
		Subject: "Account confirmation",
		Body:    "Click the link.",
	}))

	assert.Contains(t, msg, "From: noreply@example.com\r\n")
	assert.Contains(t, msg, "To: a@example.com\r\n")
	assert.Contains(t, msg, "Subject: Account confirmation\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.Contains(t, msg, "\r\n\r\nClick the link.")
}

func TestBuildMessage_HTML(t *testing.T) {
	m := testMailer()
	msg := string(m.buildMessage(emailArgs{
		To:      "a@example.com",
		Subject: "Welcome",
		Body:    "<h1>Welcome</h1>",
		HTML:    true,
	}))

	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.Contains(t, msg, "<h1>Welcome</h1>")
}
