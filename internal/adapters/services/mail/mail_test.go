package mail

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/ucmsv2/idbroker/internal/domain/valueobject/mail"
	"gitlab.com/ucmsv2/idbroker/pkg/env"
)

func testPayload() mail.Payload {
	return mail.Payload{
		To:      "alice@example.com",
		From:    mail.Sender{Name: "Identity Broker", Address: "noreply@example.com"},
		Subject: "Code: a7KmQ2 - Finish logging in to rp-1",
		Body:    "Enter your login code:\n\na7KmQ2\n",
	}
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	msg, err := buildMessage(testPayload())
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "alice@example.com")
	assert.Contains(t, raw, "Identity Broker")
	assert.Contains(t, raw, "<noreply@example.com>")
	assert.Contains(t, raw, "Subject: Code: a7KmQ2 - Finish logging in to rp-1")
	assert.Contains(t, raw, "a7KmQ2")
}

func TestBuildMessage_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(p *mail.Payload)
		wantErr error
	}{
		{name: "no recipient", mutate: func(p *mail.Payload) { p.To = "" }, wantErr: mail.ErrNoRecipient},
		{name: "no sender", mutate: func(p *mail.Payload) { p.From.Address = "" }, wantErr: mail.ErrNoSender},
		{name: "bad recipient", mutate: func(p *mail.Payload) { p.To = "not an address" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := testPayload()
			tt.mutate(&p)

			_, err := buildMessage(p)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewSMTPSender_RequiresHost(t *testing.T) {
	t.Parallel()

	_, err := NewSMTPSender(SMTPConfig{}, nil, nil)
	assert.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p"}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode     env.Mode
		wantBody bool
	}{
		{mode: env.Local, wantBody: true},
		{mode: env.Prod, wantBody: false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			l := slog.New(slog.NewTextHandler(&buf, nil))

			err := NewLogSender(tt.mode, l).SendMail(t.Context(), testPayload())
			require.NoError(t, err)

			out := buf.String()
			assert.NotContains(t, out, "alice@example.com")
			assert.Equal(t, tt.wantBody, strings.Contains(out, "a7KmQ2"))
		})
	}
}
