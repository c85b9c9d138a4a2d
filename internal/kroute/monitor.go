package kroute

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/B4PzwL3YVGa6/newd/internal/log"
	"github.com/B4PzwL3YVGa6/newd/internal/proposal"
)

// State is the monitor lifecycle.
type State uint8

const (
	StateUninitialized State = iota
	StateListening
	StateClosed
)

// ReadBufSize is the fixed per-wakeup read buffer. One read may carry
// several concatenated kernel messages.
const ReadBufSize = 16384

// Conn is the raw kernel notification channel, already opened,
// filtered, and switched to non-blocking mode.
type Conn interface {
	Read(p []byte) (int, error)
	Close() error
	Fd() int
}

// Forwarder carries decoded proposals to the engine over IPC.
type Forwarder interface {
	ForwardProposal(*proposal.Proposal) error
}

// Monitor drives the notification channel from the event loop.
type Monitor struct {
	conn     Conn
	fwd      Forwarder
	shutdown func() // orderly process-shutdown request
	state    State
	buf      [ReadBufSize]byte
}

// NewMonitor wires a channel to a forwarder. shutdown is invoked when
// the kernel closes the channel; it must wind the process down without
// treating the situation as a failure.
func NewMonitor(conn Conn, fwd Forwarder, shutdown func()) *Monitor {
	return &Monitor{conn: conn, fwd: fwd, shutdown: shutdown}
}

// Init transitions the monitor to Listening. The caller registers
// conn's descriptor with the event loop.
func (m *Monitor) Init() error {
	if m.state != StateUninitialized {
		return fmt.Errorf("kroute: monitor already initialized")
	}
	m.state = StateListening
	return nil
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	return m.state
}

// OnReadable performs one non-blocking read and forwards every decoded
// proposal. Would-block and interrupted reads are silent; a zero-length
// read means the kernel closed the channel and requests an orderly
// shutdown; framing violations and any other read error are fatal.
func (m *Monitor) OnReadable() error {
	n, err := m.conn.Read(m.buf[:])
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("kroute: read: %w", err)
	}
	if n == 0 {
		log.Warnf("routing socket closed")
		m.state = StateClosed
		m.shutdown()
		return nil
	}

	ps, err := proposal.DecodeAll(m.buf[:n])
	if err != nil {
		// The stream is desynchronized; continuing would misparse
		// every following message boundary.
		return fmt.Errorf("kroute: %w", err)
	}
	for _, p := range ps {
		log.Debugf("proposal xid %d source %d family v%d if %d", p.XID, p.Source, p.Family, p.Index)
		if err := m.fwd.ForwardProposal(p); err != nil {
			return err
		}
	}
	return nil
}

// OnWritable satisfies the event-loop handler; the monitor never
// writes.
func (m *Monitor) OnWritable() error {
	return nil
}
