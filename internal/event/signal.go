package event

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// SignalFunc is invoked from the loop, never from a signal context.
type SignalFunc func(os.Signal)

type signalHandler struct {
	rfd  int
	sigs []os.Signal
	fn   SignalFunc
}

// RegisterSignals routes the given signals into the loop through a
// self-pipe, so fn runs with the same no-preemption guarantee as every
// other handler.
func (l *Loop) RegisterSignals(fn SignalFunc, sigs ...os.Signal) error {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return err
	}
	for _, fd := range p {
		unix.SetNonblock(fd, true)
		unix.CloseOnExec(fd)
	}

	ch := make(chan os.Signal, len(sigs))
	signal.Notify(ch, sigs...)
	go func() {
		for s := range ch {
			for i, want := range sigs {
				if s == want {
					b := [1]byte{byte(i)}
					unix.Write(p[1], b[:])
					break
				}
			}
		}
	}()

	l.Register(p[0], &signalHandler{rfd: p[0], sigs: sigs, fn: fn})
	return nil
}

func (h *signalHandler) OnReadable() error {
	var buf [16]byte
	for {
		n, err := unix.Read(h.rfd, buf[:])
		if n <= 0 || err != nil {
			return nil
		}
		for _, b := range buf[:n] {
			if int(b) < len(h.sigs) {
				h.fn(h.sigs[b])
			}
		}
	}
}

func (h *signalHandler) OnWritable() error {
	return nil
}
