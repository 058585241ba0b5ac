package channel

import (
	"context"

	cherrors "github.com/channelkit/channel-sdk-go/pkg/errors"
	"github.com/channelkit/channel-sdk-go/pkg/protocol"
)

// Iterator is a pull cursor over a channel's message stream, for callers who
// prefer a range-style loop over repeated Recv calls:
//
//	it := ch.Messages(ctx)
//	for it.Next() {
//	    handle(it.Message())
//	}
//	if err := it.Err(); err != nil {
//	    ...
//	}
//
// A graceful close ends the iteration with a nil Err; a terminal failure or
// a close caused by one surfaces through Err.
type Iterator struct {
	ctx context.Context
	ch  *Channel
	msg *protocol.Message
	err error
	eof bool
}

// Messages returns an iterator over the channel's message stream. The same
// single-consumer restriction as Recv applies: one iterator, or one Recv
// caller, at a time.
func (c *Channel) Messages(ctx context.Context) *Iterator {
	return &Iterator{ctx: ctx, ch: c}
}

// Next advances the iterator, blocking until a message arrives or the
// stream ends. It returns false when the channel is closed or an error
// occurred; check Err to tell the two apart.
func (it *Iterator) Next() bool {
	if it.eof {
		return false
	}

	msg, err := it.ch.Recv(it.ctx)
	if err != nil {
		it.eof = true
		it.msg = nil
		if gracefulClose(err) {
			return false
		}
		it.err = err
		return false
	}

	it.msg = msg
	return true
}

// Message returns the message produced by the last successful Next
func (it *Iterator) Message() *protocol.Message {
	return it.msg
}

// Err returns the error that ended the iteration, or nil after a graceful
// close
func (it *Iterator) Err() error {
	return it.err
}

// gracefulClose reports whether err is a plain closed-channel outcome with
// no underlying failure
func gracefulClose(err error) bool {
	if !cherrors.IsChannelClosed(err) {
		return false
	}
	chErr, ok := cherrors.AsChannelError(err)
	if !ok {
		return false
	}
	return chErr.Unwrap() == nil
}
