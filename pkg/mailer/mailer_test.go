package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charityconnect/charityconnect-backend/pkg/config"
)

func testConfig() config.MailConfig {
	return config.MailConfig{
		Host:     "localhost",
		Port:     2525,
		From:     "no-reply@charityconnect.ie",
		FromName: "CharityConnect",
	}
}

func TestComposeBuildsMimeMessage(t *testing.T) {
	m, err := New(testConfig(), nil)
	require.NoError(t, err)

	mail, err := m.compose(Message{
		To:      "donor@example.com",
		Subject: "Your CharityConnect receipt",
		Body:    "Thank you",
		Attachments: []Attachment{
			{Name: "receipt_1.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3 test")},
			{Name: "empty.txt"},
		},
	})
	require.NoError(t, err)

	buf, err := mail.MimeBuf()
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "donor@example.com")
	assert.Contains(t, raw, "Your CharityConnect receipt")
	assert.Contains(t, raw, "receipt_1.pdf")
	assert.Contains(t, raw, "application/pdf")
	assert.NotContains(t, raw, "empty.txt")
}

func TestComposeValidation(t *testing.T) {
	m, err := New(testConfig(), nil)
	require.NoError(t, err)

	_, err = m.compose(Message{Subject: "x"})
	assert.Error(t, err)
	_, err = m.compose(Message{To: "a@b.c"})
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	_, err := New(config.MailConfig{From: "a@b.c"}, nil)
	assert.Error(t, err)
	_, err = New(config.MailConfig{Host: "smtp"}, nil)
	assert.Error(t, err)
}

func TestSendHonoursCanceledContext(t *testing.T) {
	m, err := New(testConfig(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Send(ctx, Message{To: "donor@example.com", Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, context.Canceled)
}
