package mail

import (
	"context"
	"sync"
	"time"

	"github.com/artelie/backend/internal/logging"
)

const defaultSendTimeout = 30 * time.Second

// Dispatcher sends mail on background goroutines so request latency does not
// depend on the relay. Wait drains in-flight sends on shutdown.
type Dispatcher struct {
	sender  Sender
	logger  logging.Logger
	timeout time.Duration
	wg      sync.WaitGroup
	onSent  func(kind string, err error)
}

func NewDispatcher(s Sender, l logging.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  s,
		logger:  l.With("module", "mail_dispatcher"),
		timeout: defaultSendTimeout,
		onSent:  func(string, error) {},
	}
}

// OnSent registers a hook called after every attempt, e.g. for metrics.
func (d *Dispatcher) OnSent(fn func(kind string, err error)) {
	d.onSent = fn
}

// Dispatch sends msg in the background. kind labels the message in logs.
// The request context's cancellation does not abort the send.
func (d *Dispatcher) Dispatch(ctx context.Context, kind string, msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		err := d.sender.Send(sendCtx, msg)
		d.onSent(kind, err)
		if err != nil {
			d.logger.Error(sendCtx, "email delivery failed", "kind", kind, "error", err)
			return
		}
		d.logger.Debug(sendCtx, "email delivered", "kind", kind)
	}()
}

// Wait blocks until every dispatched send finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
