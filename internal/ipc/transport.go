package ipc

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/B4PzwL3YVGa6/newd/internal/log"
)

// ErrClosed reports that the peer end of the channel has gone away
// (zero-length read). It is an orderly-shutdown condition, not a
// failure.
var ErrClosed = errors.New("ipc: peer closed")

// ErrFraming reports a frame whose declared length is impossible. The
// byte stream can no longer be trusted; callers must treat it as fatal.
var ErrFraming = errors.New("ipc: framing violation")

type outFrame struct {
	data []byte
	off  int
	fd   int // descriptor to attach, -1 for none
}

// Transport frames messages over one end of a unix stream socketpair.
// It performs only non-blocking I/O; the owning process drives it from
// its event loop.
type Transport struct {
	fd   int
	pid  uint32
	rbuf []byte
	rlen int
	fdq  []int // received descriptors awaiting their frame
	wq   []*outFrame
}

// New wraps an already connected socketpair endpoint. The descriptor
// is switched to non-blocking mode and owned by the transport from now
// on.
func New(fd int) (*Transport, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("ipc: set nonblock: %w", err)
	}
	return &Transport{
		fd:   fd,
		pid:  uint32(os.Getpid()),
		rbuf: make([]byte, 0, 4*MaxLen),
	}, nil
}

// Fd returns the underlying descriptor for event-loop registration.
func (t *Transport) Fd() int {
	return t.fd
}

// Send queues one frame for delivery. fd, if not -1, is attached to
// this frame and closed once it has been handed to the kernel. Queuing
// always succeeds unless the payload cannot fit one frame; transport
// failures surface at flush time.
func (t *Transport) Send(kind Kind, peerID uint32, fd int, payload []byte) error {
	if len(payload) > MaxLen-HeaderLen {
		return fmt.Errorf("ipc: %s payload of %d bytes exceeds frame limit", kind, len(payload))
	}
	h := Header{
		Kind:   kind,
		Len:    uint16(HeaderLen + len(payload)),
		PeerID: peerID,
		PID:    t.pid,
	}
	if fd >= 0 {
		h.Flags |= flagFD
	}
	frame := append(marshalHeader(h), payload...)
	t.wq = append(t.wq, &outFrame{data: frame, fd: fdOrMinus(fd)})
	return nil
}

func fdOrMinus(fd int) int {
	if fd < 0 {
		return -1
	}
	return fd
}

// PendingWrites reports whether queued frames remain to be flushed.
// Write-readiness interest must stay registered while it returns true.
func (t *Transport) PendingWrites() bool {
	return len(t.wq) > 0
}

// OnReadable performs one non-blocking receive and delivers every
// complete frame to deliver, in order. It returns ErrClosed on a
// zero-length read, ErrFraming on an impossible length field, nil on
// would-block, and the raw error otherwise. An error returned by
// deliver stops dispatch and is passed through.
func (t *Transport) OnReadable(deliver func(*Msg) error) error {
	if len(t.rbuf) < t.rlen+MaxLen {
		t.rbuf = append(t.rbuf, make([]byte, t.rlen+MaxLen-len(t.rbuf))...)
	}
	oob := make([]byte, unix.CmsgSpace(4*16))

	n, oobn, _, _, err := unix.Recvmsg(t.fd, t.rbuf[t.rlen:t.rlen+MaxLen], oob, unix.MSG_CMSG_CLOEXEC)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return nil
	case err != nil:
		return fmt.Errorf("ipc: recvmsg: %w", err)
	case n == 0:
		return ErrClosed
	}

	if oobn > 0 {
		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return fmt.Errorf("ipc: control message: %w", err)
		}
		for _, scm := range scms {
			fds, err := unix.ParseUnixRights(&scm)
			if err != nil {
				continue
			}
			t.fdq = append(t.fdq, fds...)
		}
	}

	t.rlen += n
	return t.dispatch(deliver)
}

func (t *Transport) dispatch(deliver func(*Msg) error) error {
	for t.rlen >= HeaderLen {
		h := parseHeader(t.rbuf)
		if h.Len < HeaderLen || h.Len > MaxLen {
			return fmt.Errorf("%w: frame length %d", ErrFraming, h.Len)
		}
		if t.rlen < int(h.Len) {
			break // partial frame, wait for more bytes
		}

		m := &Msg{Header: h, FD: -1}
		m.Data = make([]byte, int(h.Len)-HeaderLen)
		copy(m.Data, t.rbuf[HeaderLen:h.Len])
		if h.Flags&flagFD != 0 {
			if len(t.fdq) > 0 {
				m.FD = t.fdq[0]
				t.fdq = t.fdq[1:]
			} else {
				log.Warnf("frame %s expected a descriptor, none delivered", h.Kind)
			}
		}

		copy(t.rbuf, t.rbuf[h.Len:t.rlen])
		t.rlen -= int(h.Len)

		if err := deliver(m); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes as many queued frames as the kernel accepts. Attached
// descriptors ride with the first byte of their frame and are closed
// here once transferred.
func (t *Transport) Flush() error {
	for len(t.wq) > 0 {
		f := t.wq[0]

		var oob []byte
		if f.fd >= 0 && f.off == 0 {
			oob = unix.UnixRights(f.fd)
		}
		n, err := unix.SendmsgN(t.fd, f.data[f.off:], oob, nil, 0)
		if err == unix.EAGAIN {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("ipc: sendmsg: %w", err)
		}

		if f.fd >= 0 && f.off == 0 && n > 0 {
			unix.Close(f.fd) // ownership transferred to the peer
			f.fd = -1
		}
		f.off += n
		if f.off == len(f.data) {
			t.wq = t.wq[1:]
		}
	}
	return nil
}

// Close releases the channel and every descriptor still queued on it.
func (t *Transport) Close() error {
	for _, f := range t.wq {
		if f.fd >= 0 {
			unix.Close(f.fd)
		}
	}
	t.wq = nil
	for _, fd := range t.fdq {
		unix.Close(fd)
	}
	t.fdq = nil
	return unix.Close(t.fd)
}
