// Package frontend implements the child that owns the external
// control surface. Control clients connect to a unix socket and speak
// the same frame format the processes use among themselves; the
// frontend forwards reload and verbosity requests to the supervisor
// and routes introspection replies back to the asking client.
package frontend

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/B4PzwL3YVGa6/newd/internal/config"
	"github.com/B4PzwL3YVGa6/newd/internal/event"
	"github.com/B4PzwL3YVGa6/newd/internal/ipc"
	"github.com/B4PzwL3YVGa6/newd/internal/log"
)

// parentFD is the inherited supervisor channel.
const parentFD = 3

// DefaultSocket is the control socket path when -s is not given.
const DefaultSocket = "/var/run/newd.sock"

// sender is the outgoing half of a channel, split out so dispatch can
// be driven without descriptors in tests.
type sender interface {
	Send(kind ipc.Kind, peerID uint32, fd int, payload []byte) error
}

// Frontend is the event-looped control child.
type Frontend struct {
	loop   *event.Loop
	parent sender
	engine sender

	store config.Store

	conns  map[uint32]sender
	nextID uint32

	sockPath string
	listenFD int
}

// Run binds the control socket, attaches the supervisor channel, and
// blocks in the event loop until the supervisor closes it.
func Run(sockPath string) error {
	if sockPath == "" {
		sockPath = DefaultSocket
	}
	loop := event.NewLoop()
	f := &Frontend{
		loop:     loop,
		conns:    make(map[uint32]sender),
		sockPath: sockPath,
		listenFD: -1,
	}

	parent, err := ipc.NewChannel(loop, parentFD, f.handleParent)
	if err != nil {
		return err
	}
	f.parent = parent

	if err := f.listen(); err != nil {
		return err
	}

	log.Infof("startup")
	err = loop.Run()
	f.cleanup()
	log.Infof("terminating")
	return err
}

// listen binds the control socket and registers the accept handler.
func (f *Frontend) listen() error {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("frontend: control socket: %w", err)
	}
	// A stale socket from a previous run blocks bind.
	os.Remove(f.sockPath)

	sa := &unix.SockaddrUnix{Name: f.sockPath}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return fmt.Errorf("frontend: bind %s: %w", f.sockPath, err)
	}
	if err := unix.Chmod(f.sockPath, 0600); err != nil {
		unix.Close(fd)
		return fmt.Errorf("frontend: chmod %s: %w", f.sockPath, err)
	}
	if err := unix.Listen(fd, 64); err != nil {
		unix.Close(fd)
		return fmt.Errorf("frontend: listen %s: %w", f.sockPath, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("frontend: nonblock: %w", err)
	}

	f.listenFD = fd
	f.loop.Register(fd, &acceptor{f: f})
	return nil
}

func (f *Frontend) cleanup() {
	if f.listenFD >= 0 {
		unix.Close(f.listenFD)
		os.Remove(f.sockPath)
	}
}

// acceptor drains pending control connections on listen readiness.
type acceptor struct {
	f *Frontend
}

func (a *acceptor) OnReadable() error {
	for {
		fd, _, err := unix.Accept(a.f.listenFD)
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frontend: accept: %w", err)
		}
		if err := a.f.addConn(fd); err != nil {
			return err
		}
	}
}

func (a *acceptor) OnWritable() error { return nil }

// addConn registers one control connection under a fresh id used to
// route replies back to it.
func (f *Frontend) addConn(fd int) error {
	f.nextID++
	id := f.nextID

	ch, err := ipc.NewChannel(f.loop, fd, func(m *ipc.Msg) error {
		return f.handleControl(id, m)
	})
	if err != nil {
		unix.Close(fd)
		return err
	}
	ch.OnClose(func() {
		delete(f.conns, id)
	})
	f.conns[id] = ch
	log.Debugf("control connection %d accepted", id)
	return nil
}

// handleControl dispatches one client request. Unknown kinds are
// logged and dropped; clients cannot take the daemon down.
func (f *Frontend) handleControl(id uint32, m *ipc.Msg) error {
	switch m.Kind {
	case ipc.KindCtlReload:
		return f.parent.Send(ipc.KindCtlReload, id, -1, nil)
	case ipc.KindCtlLogVerbose:
		if err := m.SizeCheck(4); err != nil {
			log.Warnf("control connection %d: %v", id, err)
			return nil
		}
		log.SetVerbose(binary.NativeEndian.Uint32(m.Data) != 0)
		return f.parent.Send(ipc.KindCtlLogVerbose, id, -1, m.Data)
	case ipc.KindCtlShowInfo:
		info := []byte(fmt.Sprintf("frontend: pid %d, %d groups", os.Getpid(), f.activeGroups()))
		if conn := f.conns[id]; conn != nil {
			if err := conn.Send(ipc.KindCtlShowInfo, id, -1, info); err != nil {
				return err
			}
		}
		return f.parent.Send(ipc.KindCtlShowInfo, id, -1, nil)
	default:
		log.Debugf("control connection %d: unhandled %s", id, m.Kind)
	}
	return nil
}

func (f *Frontend) activeGroups() int {
	if c := f.store.Active(); c != nil {
		return len(c.Groups)
	}
	return 0
}

// handleParent dispatches supervisor messages: the configuration
// sequence, the engine channel handoff, and introspection replies to
// relay.
func (f *Frontend) handleParent(m *ipc.Msg) error {
	switch m.Kind {
	case ipc.KindReconfConf:
		if err := m.SizeCheck(config.ConfWireLen); err != nil {
			return err
		}
		c, err := config.UnmarshalWire(m.Data)
		if err != nil {
			return err
		}
		f.store.BeginUpdate(c)
	case ipc.KindReconfGroup:
		if err := m.SizeCheck(config.GroupWireLen); err != nil {
			return err
		}
		g, err := config.UnmarshalGroupWire(m.Data)
		if err != nil {
			return err
		}
		return f.store.AddGroup(g)
	case ipc.KindReconfEnd:
		return f.store.Commit()
	case ipc.KindSocketIPC:
		return f.attachEngine(m)
	case ipc.KindCtlShowInfo, ipc.KindCtlEnd:
		f.relay(m)
	default:
		log.Debugf("unhandled supervisor message %s", m.Kind)
	}
	return nil
}

// attachEngine adopts the handoff descriptor as the direct engine
// channel; everything the engine sends here is a reply to relay.
func (f *Frontend) attachEngine(m *ipc.Msg) error {
	if m.FD < 0 {
		return fmt.Errorf("frontend: channel handoff without descriptor")
	}
	engine, err := ipc.NewChannel(f.loop, m.FD, f.handleEngine)
	if err != nil {
		return err
	}
	engine.OnClose(func() {})
	f.engine = engine
	return nil
}

func (f *Frontend) handleEngine(m *ipc.Msg) error {
	switch m.Kind {
	case ipc.KindCtlShowInfo, ipc.KindCtlEnd:
		f.relay(m)
	default:
		log.Debugf("unhandled engine message %s", m.Kind)
	}
	return nil
}

// relay forwards a reply to the control connection it belongs to. The
// client may have disconnected while the answer was in flight; that is
// not an error.
func (f *Frontend) relay(m *ipc.Msg) {
	conn := f.conns[m.PeerID]
	if conn == nil {
		log.Debugf("reply %s for gone connection %d", m.Kind, m.PeerID)
		return
	}
	if err := conn.Send(m.Kind, m.PeerID, -1, m.Data); err != nil {
		log.Warnf("relay to connection %d: %v", m.PeerID, err)
	}
}
