package ipc

import (
	"errors"

	"github.com/B4PzwL3YVGa6/newd/internal/event"
)

// HandlerFunc consumes one delivered message. Returning an error is
// fatal to the process.
type HandlerFunc func(*Msg) error

// Channel ties one Transport to the process event loop, keeping
// write-readiness interest registered exactly while output is queued.
type Channel struct {
	tr      *Transport
	loop    *event.Loop
	handle  HandlerFunc
	onClose func()
}

// NewChannel wraps fd, registers it with the loop, and dispatches
// incoming messages to handle. When the peer closes the channel it is
// deregistered and the loop is stopped, unless OnClose installs a
// different reaction.
func NewChannel(loop *event.Loop, fd int, handle HandlerFunc) (*Channel, error) {
	tr, err := New(fd)
	if err != nil {
		return nil, err
	}
	c := &Channel{tr: tr, loop: loop, handle: handle}
	loop.Register(fd, c)
	return c, nil
}

// OnClose replaces the default peer-closed reaction (stop the loop).
func (c *Channel) OnClose(fn func()) {
	c.onClose = fn
}

// Fd returns the channel's descriptor.
func (c *Channel) Fd() int {
	return c.tr.Fd()
}

// Send queues a frame and arms write interest.
func (c *Channel) Send(kind Kind, peerID uint32, fd int, payload []byte) error {
	if err := c.tr.Send(kind, peerID, fd, payload); err != nil {
		return err
	}
	c.loop.WantWrite(c.tr.Fd(), true)
	return nil
}

// OnReadable drains complete frames into the handler. Peer-closed is
// orderly: deregister and wind the process down.
func (c *Channel) OnReadable() error {
	err := c.tr.OnReadable(c.handle)
	if errors.Is(err, ErrClosed) {
		c.loop.Deregister(c.tr.Fd())
		if c.onClose != nil {
			c.onClose()
		} else {
			c.loop.Stop()
		}
		return nil
	}
	return err
}

// OnWritable flushes queued frames and drops write interest once the
// queue drains.
func (c *Channel) OnWritable() error {
	if err := c.tr.Flush(); err != nil {
		return err
	}
	c.loop.WantWrite(c.tr.Fd(), c.tr.PendingWrites())
	return nil
}

// Close deregisters the channel and releases its descriptor.
func (c *Channel) Close() error {
	c.loop.Deregister(c.tr.Fd())
	return c.tr.Close()
}
