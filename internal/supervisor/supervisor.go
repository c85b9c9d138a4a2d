package supervisor

import (
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/B4PzwL3YVGa6/newd/internal/config"
	"github.com/B4PzwL3YVGa6/newd/internal/event"
	"github.com/B4PzwL3YVGa6/newd/internal/ipc"
	"github.com/B4PzwL3YVGa6/newd/internal/kroute"
	"github.com/B4PzwL3YVGa6/newd/internal/log"
)

// Options configures a supervisor run. Executable is the binary the
// children are spawned from, normally our own path.
type Options struct {
	ConfigPath string
	SockName   string
	Debug      bool
	Verbose    bool
	Executable string
}

// Supervisor is the privileged parent process.
type Supervisor struct {
	opts Options
	loop *event.Loop
	cfg  *config.Config

	engine   *ipc.Channel
	frontend *ipc.Channel

	engineCmd   *exec.Cmd
	frontendCmd *exec.Cmd

	monitor *kroute.Monitor
	conn    kroute.Conn
}

func New(opts Options) *Supervisor {
	return &Supervisor{opts: opts, loop: event.NewLoop()}
}

// childArgs carries the shared flags down to a child process.
func (s *Supervisor) childArgs() []string {
	var args []string
	if s.opts.Debug {
		args = append(args, "-d")
	}
	if s.opts.Verbose {
		args = append(args, "-v")
	}
	return args
}

// Run brings the three-process service up and blocks in the event
// loop until shutdown.
func (s *Supervisor) Run() error {
	cfg, err := config.Load(s.opts.ConfigPath)
	if err != nil {
		return err
	}
	s.cfg = cfg

	// One pair per child, plus the direct engine-frontend channel
	// whose ends travel by descriptor passing.
	enginePair, err := socketPair()
	if err != nil {
		return err
	}
	frontendPair, err := socketPair()
	if err != nil {
		return err
	}
	directPair, err := socketPair()
	if err != nil {
		return err
	}

	s.engineCmd, err = spawnChild(s.opts.Executable, "-E", s.childArgs(), enginePair[1])
	if err != nil {
		return err
	}
	frontendExtra := s.childArgs()
	if s.opts.SockName != "" {
		frontendExtra = append(frontendExtra, "-s", s.opts.SockName)
	}
	s.frontendCmd, err = spawnChild(s.opts.Executable, "-F", frontendExtra, frontendPair[1])
	if err != nil {
		return err
	}
	unix.Close(enginePair[1])
	unix.Close(frontendPair[1])

	s.engine, err = ipc.NewChannel(s.loop, enginePair[0], s.handleEngine)
	if err != nil {
		return err
	}
	s.frontend, err = ipc.NewChannel(s.loop, frontendPair[0], s.handleFrontend)
	if err != nil {
		return err
	}

	if err := s.loop.RegisterSignals(s.handleSignal, unix.SIGINT, unix.SIGTERM, unix.SIGHUP); err != nil {
		return fmt.Errorf("supervisor: signals: %w", err)
	}

	s.conn, err = kroute.OpenRouteSocket()
	if err != nil {
		return err
	}
	s.monitor = kroute.NewMonitor(s.conn, &engineForwarder{ch: s.engine}, s.loop.Stop)
	if err := s.monitor.Init(); err != nil {
		return err
	}
	s.loop.Register(s.conn.Fd(), s.monitor)

	// Hand each child its end of the direct channel, then the
	// configuration. Ownership of the descriptors passes to the
	// transport.
	if err := s.engine.Send(ipc.KindSocketIPC, 0, directPair[0], nil); err != nil {
		return err
	}
	if err := s.frontend.Send(ipc.KindSocketIPC, 0, directPair[1], nil); err != nil {
		return err
	}
	if err := distributeConfig(s.engine, s.cfg); err != nil {
		return err
	}
	if err := distributeConfig(s.frontend, s.cfg); err != nil {
		return err
	}

	log.Infof("startup")
	err = s.loop.Run()
	s.shutdown()
	return err
}

func (s *Supervisor) handleSignal(sig os.Signal) {
	switch sig {
	case unix.SIGINT, unix.SIGTERM:
		log.Infof("%v received, shutting down", sig)
		s.loop.Stop()
	case unix.SIGHUP:
		if err := s.reload(); err != nil {
			log.Warnf("configuration reload failed: %v", err)
		}
	}
}

// reload re-parses the configuration. A parse or validation failure
// leaves the running configuration untouched everywhere. On success
// the children receive the new configuration before the supervisor
// merges it into its own copy.
func (s *Supervisor) reload() error {
	cfg, err := config.Load(s.opts.ConfigPath)
	if err != nil {
		return err
	}
	if err := distributeConfig(s.engine, cfg); err != nil {
		return err
	}
	if err := distributeConfig(s.frontend, cfg); err != nil {
		return err
	}
	s.cfg.Merge(cfg)
	log.Infof("configuration reloaded")
	return nil
}

// handleFrontend dispatches control requests the frontend forwards up.
func (s *Supervisor) handleFrontend(m *ipc.Msg) error {
	switch m.Kind {
	case ipc.KindCtlReload:
		if err := s.reload(); err != nil {
			log.Warnf("configuration reload failed: %v", err)
		}
	case ipc.KindCtlLogVerbose:
		if err := m.SizeCheck(4); err != nil {
			return err
		}
		verbose := binary.NativeEndian.Uint32(m.Data) != 0
		log.SetVerbose(verbose)
		// The engine applies the same setting.
		return s.engine.Send(ipc.KindCtlLogVerbose, m.PeerID, -1, m.Data)
	case ipc.KindCtlShowInfo:
		info := showInfo("supervisor", len(s.cfg.Groups))
		if err := s.frontend.Send(ipc.KindCtlShowInfo, m.PeerID, -1, info); err != nil {
			return err
		}
		// The engine answers over its direct frontend channel and
		// closes the sequence.
		return s.engine.Send(ipc.KindCtlShowInfo, m.PeerID, -1, nil)
	default:
		log.Debugf("unhandled frontend message %s", m.Kind)
	}
	return nil
}

// handleEngine dispatches engine messages. The engine currently sends
// nothing upward; anything arriving is logged and dropped.
func (s *Supervisor) handleEngine(m *ipc.Msg) error {
	log.Debugf("unhandled engine message %s", m.Kind)
	return nil
}

// showInfo renders one process's introspection line.
func showInfo(proc string, groups int) []byte {
	return []byte(fmt.Sprintf("%s: pid %d, %d groups", proc, os.Getpid(), groups))
}

// shutdown closes the child channels, which the children observe as
// peer-closed and exit on, then reaps them.
func (s *Supervisor) shutdown() {
	if s.engine != nil {
		s.engine.Close()
	}
	if s.frontend != nil {
		s.frontend.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	if s.engineCmd != nil {
		if msg, bad := waitChild("engine", s.engineCmd); bad {
			log.Warnf("%s", msg)
		}
	}
	if s.frontendCmd != nil {
		if msg, bad := waitChild("frontend", s.frontendCmd); bad {
			log.Warnf("%s", msg)
		}
	}
	log.Infof("terminating")
}
