package mail

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/artelie/backend/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu      sync.Mutex
	msgs    []Message
	err     error
	release chan struct{}
	ctxErr  error
}

func (s *recordingSender) Send(ctx context.Context, msg Message) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	s.ctxErr = ctx.Err()
	return s.err
}

func TestDispatcher_SendsInBackgroundAndDrains(t *testing.T) {
	rs := &recordingSender{release: make(chan struct{})}
	d := NewDispatcher(rs, logging.NewDiscard())

	d.Dispatch(context.Background(), "verification", Message{To: "a@x.com"})
	d.Dispatch(context.Background(), "verification", Message{To: "b@x.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded, "sends are still blocked")

	close(rs.release)
	require.NoError(t, d.Wait(context.Background()))
	assert.Len(t, rs.msgs, 2)
}

func TestDispatcher_RequestCancellationDoesNotAbortSend(t *testing.T) {
	rs := &recordingSender{}
	d := NewDispatcher(rs, logging.NewDiscard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.Dispatch(ctx, "verification", Message{To: "a@x.com"})
	require.NoError(t, d.Wait(context.Background()))
	assert.NoError(t, rs.ctxErr)
}

func TestDispatcher_FailuresReportedToHook(t *testing.T) {
	rs := &recordingSender{err: errors.New("relay down")}
	d := NewDispatcher(rs, logging.NewDiscard())

	var mu sync.Mutex
	var kinds []string
	var errs []error
	d.OnSent(func(kind string, err error) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, kind)
		errs = append(errs, err)
	})

	d.Dispatch(context.Background(), "password_changed", Message{})
	require.NoError(t, d.Wait(context.Background()))

	assert.Equal(t, []string{"password_changed"}, kinds)
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "relay down")
}
