package channel

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	cherrors "github.com/channelkit/channel-sdk-go/pkg/errors"
	"github.com/channelkit/channel-sdk-go/pkg/logging"
	"github.com/channelkit/channel-sdk-go/pkg/protocol"
	"github.com/channelkit/channel-sdk-go/pkg/transport"
)

// connTeardownTimeout bounds the close handshake of a connection the loop
// is abandoning
const connTeardownTimeout = 5 * time.Second

// connLoop owns the physical connection for one target endpoint. It dials,
// reads frames into the buffer, and retries with backoff when reconnect is
// enabled. It never mutates Channel state directly; outcomes flow through
// the one-shot ready channel and the generation-tagged callbacks, which the
// Channel runs under its own lock.
type connLoop struct {
	gen      uint64
	endpoint string

	connector transport.Connector
	opts      *transport.ConnectOptions
	decoder   protocol.Decoder
	buffer    *Buffer

	backoff     BackoffConfig
	reconnect   bool
	maxAttempts int

	epochs  *atomic.Uint64
	logger  logging.Logger
	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc

	// ready carries the outcome of the first connect: nil on success, the
	// terminal error otherwise. Delivered exactly once.
	ready     chan error
	readySent bool

	done chan struct{}

	onOpen         func(gen uint64, endpoint string, epoch uint64)
	onReconnecting func(gen uint64, cause error)
	onTerminal     func(gen uint64, err error)
}

// run is the loop body; it exits on cancellation or a terminal failure
func (l *connLoop) run() {
	defer close(l.done)

	attempts := 0
	for {
		if l.ctx.Err() != nil {
			l.finish(l.ctx.Err())
			return
		}

		if attempts > 0 {
			delay := l.backoff.Delay(attempts - 1)
			l.logger.Debug("waiting before reconnect",
				logging.String("endpoint", l.endpoint),
				logging.Int("attempt", attempts),
				logging.Duration("delay", delay),
			)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-l.ctx.Done():
				timer.Stop()
				l.finish(l.ctx.Err())
				return
			}
		}

		conn, err := l.connector.Open(l.ctx, l.endpoint, l.opts)
		if err != nil {
			if l.ctx.Err() != nil {
				l.finish(l.ctx.Err())
				return
			}

			attempts++
			l.logger.WithError(err).Warn("connect attempt failed",
				logging.String("endpoint", l.endpoint),
				logging.Int("attempt", attempts),
			)

			if terminal := l.retryBudgetExceeded(attempts, err); terminal != nil {
				l.finish(terminal)
				return
			}
			l.onReconnecting(l.gen, err)
			continue
		}

		attempts = 0
		epoch := l.epochs.Add(1)
		l.signalReady(nil)
		l.onOpen(l.gen, l.endpoint, epoch)
		l.logger.Info("epoch opened",
			logging.String("endpoint", l.endpoint),
			logging.Uint64("epoch", epoch),
		)

		readErr := l.readFrames(conn, epoch)
		l.teardown(conn)

		if l.ctx.Err() != nil {
			l.finish(l.ctx.Err())
			return
		}

		lost := cherrors.ConnectionLost(l.connector.Name(), l.endpoint, epoch, readErr)
		l.logger.WithError(lost).Warn("epoch ended unexpectedly",
			logging.String("endpoint", l.endpoint),
			logging.Uint64("epoch", epoch),
		)

		attempts++
		if terminal := l.retryBudgetExceeded(attempts, lost); terminal != nil {
			l.finish(terminal)
			return
		}
		l.metrics.RecordReconnect(l.endpoint)
		l.onReconnecting(l.gen, lost)
	}
}

// readFrames pushes decoded frames into the buffer until the connection
// fails or the loop is cancelled
func (l *connLoop) readFrames(conn transport.Connection, epoch uint64) error {
	for {
		frame, err := conn.NextFrame(l.ctx)
		if err != nil {
			return err
		}

		msg := l.decoder.Decode(frame, l.endpoint, epoch)
		l.buffer.Push(msg)
		l.metrics.RecordMessage(l.endpoint, msg.IsDecodeError())
		l.metrics.RecordBufferDepth(l.buffer.Len())
	}
}

// teardown closes an abandoned connection with a bounded deadline
func (l *connLoop) teardown(conn transport.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), connTeardownTimeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		l.logger.WithError(err).Debug("connection teardown reported an error",
			logging.String("endpoint", l.endpoint),
		)
	}
}

// retryBudgetExceeded returns the terminal error when no further attempts
// are allowed, or nil when the loop should retry
func (l *connLoop) retryBudgetExceeded(attempts int, cause error) error {
	if !l.reconnect {
		return cause
	}
	if l.maxAttempts > 0 && attempts >= l.maxAttempts {
		return cherrors.ReconnectExhausted(l.endpoint, attempts, cause)
	}
	return nil
}

// signalReady delivers the first-connect outcome exactly once; reports
// whether this call delivered it
func (l *connLoop) signalReady(err error) bool {
	if l.readySent {
		return false
	}
	l.readySent = true
	l.ready <- err
	return true
}

// finish reports the loop's terminal outcome. A caller still blocked on
// ready receives it there; otherwise the Channel is notified through
// onTerminal. Cancellation is not an outcome — the cancelling operation
// already owns the corresponding state transition.
func (l *connLoop) finish(err error) {
	if l.signalReady(err) {
		return
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	l.onTerminal(l.gen, err)
}
