package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/artelie/backend/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captured struct {
	from string
	to   []string
	raw  string
}

func captureSender(t *testing.T, s *SMTPSender, sendErr error) *captured {
	t.Helper()
	c := &captured{}
	s.send = func(m *gomail.Message) error {
		return gomail.Send(gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
			var buf bytes.Buffer
			if _, err := msg.WriteTo(&buf); err != nil {
				return err
			}
			c.from, c.to, c.raw = from, to, buf.String()
			return sendErr
		}), m)
	}
	return c
}

func TestSMTPSender_BuildsMultipartMessage(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 587, "u", "p", "no-reply@artelie.local")
	c := captureSender(t, s, nil)

	err := s.Send(context.Background(), Message{
		To: "alice@x.com", Subject: "Hello", HTML: "<p>hi</p>", Text: "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, "no-reply@artelie.local", c.from)
	assert.Equal(t, []string{"alice@x.com"}, c.to)
	assert.Contains(t, c.raw, "Subject: Hello")
	assert.Contains(t, c.raw, "multipart/alternative")
	assert.Contains(t, c.raw, "text/plain")
	assert.Contains(t, c.raw, "text/html")
}

func TestSMTPSender_TextOnly(t *testing.T) {
	s := NewSMTPSender("h", 25, "", "", "from@x.com")
	c := captureSender(t, s, nil)

	require.NoError(t, s.Send(context.Background(), Message{To: "a@x.com", Subject: "s", Text: "plain"}))
	assert.False(t, strings.Contains(c.raw, "text/html"))
}

func TestSMTPSender_WrapsErrors(t *testing.T) {
	s := NewSMTPSender("h", 25, "", "", "from@x.com")
	captureSender(t, s, errors.New("relay down"))

	err := s.Send(context.Background(), Message{To: "a@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp send")
	assert.Contains(t, err.Error(), "relay down")
}

func TestSMTPSender_DialsRelay(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())

	s := NewSMTPSender("127.0.0.1", port, "", "", "from@x.com")
	err = s.Send(context.Background(), Message{To: "a@x.com", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp send")
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	s := NewSMTPSender("h", 25, "", "", "from@x.com")
	called := false
	s.send = func(*gomail.Message) error { called = true; return nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Send(ctx, Message{}), context.Canceled)
	assert.False(t, called)
}

func TestLogSender_NeverFails(t *testing.T) {
	s := NewLogSender(logging.NewDiscard())
	assert.NoError(t, s.Send(context.Background(), Message{To: "a@x.com", Subject: "s"}))
}
