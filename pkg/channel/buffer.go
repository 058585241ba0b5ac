package channel

import (
	"context"
	"errors"
	"sync"

	cherrors "github.com/channelkit/channel-sdk-go/pkg/errors"
	"github.com/channelkit/channel-sdk-go/pkg/protocol"
)

// errBufferClosed is the internal signal that the buffer was shut down; the
// Channel translates it into the caller-facing terminal outcome.
var errBufferClosed = errors.New("message buffer closed")

// Buffer is an ordered, unbounded FIFO of decoded messages with a
// single-waiter hand-off. The connection loop is the only producer and the
// Channel's consumer the only reader; at most one consumer may be blocked
// in Pop at a time.
type Buffer struct {
	mu     sync.Mutex
	items  []*protocol.Message
	waiter chan *protocol.Message
	closed bool
}

func newBuffer() *Buffer {
	return &Buffer{}
}

// Push appends a message, waking a blocked consumer if one is waiting.
// It never blocks the producer; the buffer grows as needed. Pushes after
// Close are dropped.
func (b *Buffer) Push(msg *protocol.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	// A waiter only exists while the buffer is empty, so direct hand-off
	// preserves FIFO order.
	if b.waiter != nil {
		b.waiter <- msg
		b.waiter = nil
		return
	}

	b.items = append(b.items, msg)
}

// Pop removes and returns the front message, blocking while the buffer is
// empty. A second caller arriving while one is already blocked fails fast
// with ConcurrentAccess instead of queuing.
func (b *Buffer) Pop(ctx context.Context) (*protocol.Message, error) {
	b.mu.Lock()

	if len(b.items) > 0 {
		msg := b.items[0]
		b.items = b.items[1:]
		b.mu.Unlock()
		return msg, nil
	}

	if b.closed {
		b.mu.Unlock()
		return nil, errBufferClosed
	}

	if b.waiter != nil {
		b.mu.Unlock()
		return nil, cherrors.ConcurrentAccess()
	}

	ch := make(chan *protocol.Message, 1)
	b.waiter = ch
	b.mu.Unlock()

	select {
	case msg := <-ch:
		if msg == nil {
			return nil, errBufferClosed
		}
		return msg, nil
	case <-ctx.Done():
		b.mu.Lock()
		if b.waiter == ch {
			b.waiter = nil
			b.mu.Unlock()
			return nil, ctx.Err()
		}
		b.mu.Unlock()

		// Lost the race: a push or close already resolved the hand-off.
		msg := <-ch
		if msg == nil {
			return nil, errBufferClosed
		}
		return msg, nil
	}
}

// Close empties the buffer, rejects further pushes, and releases a blocked
// consumer. Safe to call more than once.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.items = nil

	if b.waiter != nil {
		b.waiter <- nil
		b.waiter = nil
	}
}

// Len returns the number of undelivered messages
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
