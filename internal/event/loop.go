// Package event implements the single-threaded reactor every newd
// process runs on. Handlers are registered per descriptor and invoked
// from the loop only; nothing preempts a running handler, so handlers
// never need locking.
package event

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Handler receives readiness callbacks for one registered descriptor.
// A non-nil error from either callback is fatal: Run returns it and
// the owning process exits.
type Handler interface {
	OnReadable() error
	OnWritable() error
}

type registration struct {
	fd        int
	handler   Handler
	wantWrite bool
}

// Loop is a poll-based reactor. It is not safe for concurrent use;
// every method must be called from the loop's own goroutine (handlers
// may register, deregister, and stop freely).
type Loop struct {
	regs    map[int]*registration
	order   []int // registration order, for stable poll sets
	stopped bool
}

func NewLoop() *Loop {
	return &Loop{regs: make(map[int]*registration)}
}

// Register adds a descriptor with its handler. Read interest is
// always on; write interest is toggled with WantWrite.
func (l *Loop) Register(fd int, h Handler) {
	if _, dup := l.regs[fd]; dup {
		return
	}
	l.regs[fd] = &registration{fd: fd, handler: h}
	l.order = append(l.order, fd)
}

// Deregister removes a descriptor from the loop. The descriptor is not
// closed; its owner does that.
func (l *Loop) Deregister(fd int) {
	if _, ok := l.regs[fd]; !ok {
		return
	}
	delete(l.regs, fd)
	for i, o := range l.order {
		if o == fd {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// WantWrite toggles write-readiness interest for a descriptor. Keep it
// on exactly while the channel has queued output.
func (l *Loop) WantWrite(fd int, on bool) {
	if r, ok := l.regs[fd]; ok {
		r.wantWrite = on
	}
}

// Stop makes Run return after the current dispatch pass.
func (l *Loop) Stop() {
	l.stopped = true
}

// Run polls and dispatches until Stop is called or a handler fails.
func (l *Loop) Run() error {
	for !l.stopped {
		if len(l.order) == 0 {
			return fmt.Errorf("event: no descriptors registered")
		}

		pfds := make([]unix.PollFd, 0, len(l.order))
		for _, fd := range l.order {
			r := l.regs[fd]
			ev := int16(unix.POLLIN)
			if r.wantWrite {
				ev |= unix.POLLOUT
			}
			pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: ev})
		}

		n, err := unix.Poll(pfds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("event: poll: %w", err)
		}
		if n == 0 {
			continue
		}

		for _, p := range pfds {
			r, ok := l.regs[int(p.Fd)]
			if !ok {
				continue // deregistered by an earlier handler this pass
			}
			if p.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
				if err := r.handler.OnReadable(); err != nil {
					return err
				}
			}
			if _, ok := l.regs[int(p.Fd)]; !ok {
				continue
			}
			if p.Revents&unix.POLLOUT != 0 {
				if err := r.handler.OnWritable(); err != nil {
					return err
				}
			}
			if l.stopped {
				break
			}
		}
	}
	return nil
}
