// Package engine implements the privileged consumer child. It stages
// and adopts configuration from the supervisor, applies policy to
// incoming proposals, and drives the installer against the kernel.
package engine

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"

	"github.com/B4PzwL3YVGa6/newd/internal/config"
	"github.com/B4PzwL3YVGa6/newd/internal/event"
	"github.com/B4PzwL3YVGa6/newd/internal/ipc"
	"github.com/B4PzwL3YVGa6/newd/internal/kroute"
	"github.com/B4PzwL3YVGa6/newd/internal/log"
	"github.com/B4PzwL3YVGa6/newd/internal/proposal"
	"github.com/B4PzwL3YVGa6/newd/internal/rtwire"
)

// parentFD is the inherited supervisor channel, the child's only
// descriptor beyond the standard three.
const parentFD = 3

// installer is the slice of kroute.Installer the engine drives.
type installer interface {
	AddAddress(kroute.AddAddressRequest)
	AddRoute(kroute.AddRouteRequest)
}

// Engine is the event-looped child state.
type Engine struct {
	loop   *event.Loop
	parent *ipc.Channel
	front  *ipc.Channel

	store  config.Store
	inst   installer
	policy Policy

	// ifName resolves a kernel interface index to its name.
	ifName func(index uint16) string
}

// Run opens the kernel handles, attaches the supervisor channel, and
// blocks in the event loop until the supervisor closes it.
func Run() error {
	rw, err := kroute.OpenRouteWriter()
	if err != nil {
		return err
	}
	dev, err := kroute.OpenDevCtl()
	if err != nil {
		return err
	}

	loop := event.NewLoop()
	e := &Engine{
		loop:   loop,
		inst:   kroute.NewInstaller(rw, dev),
		policy: GroupPolicy{},
		ifName: systemIfName,
	}
	e.parent, err = ipc.NewChannel(loop, parentFD, e.handleParent)
	if err != nil {
		return err
	}

	log.Infof("startup")
	err = loop.Run()
	log.Infof("terminating")
	return err
}

func systemIfName(index uint16) string {
	ifi, err := net.InterfaceByIndex(int(index))
	if err != nil {
		return ""
	}
	return ifi.Name
}

// handleParent dispatches supervisor messages.
func (e *Engine) handleParent(m *ipc.Msg) error {
	switch m.Kind {
	case ipc.KindReconfConf:
		if err := m.SizeCheck(config.ConfWireLen); err != nil {
			return err
		}
		c, err := config.UnmarshalWire(m.Data)
		if err != nil {
			return err
		}
		e.store.BeginUpdate(c)
	case ipc.KindReconfGroup:
		if err := m.SizeCheck(config.GroupWireLen); err != nil {
			return err
		}
		g, err := config.UnmarshalGroupWire(m.Data)
		if err != nil {
			return err
		}
		return e.store.AddGroup(g)
	case ipc.KindReconfEnd:
		if err := e.store.Commit(); err != nil {
			return err
		}
		log.Debugf("configuration adopted (%d groups)", len(e.store.Active().Groups))
	case ipc.KindSocketIPC:
		return e.attachFrontend(m)
	case ipc.KindCtlLogVerbose:
		if err := m.SizeCheck(4); err != nil {
			return err
		}
		log.SetVerbose(binary.NativeEndian.Uint32(m.Data) != 0)
	case ipc.KindCtlShowInfo:
		return e.answerShowInfo(m.PeerID)
	case ipc.KindProposalV4:
		return e.handleProposalMsg(proposal.IPv4, m)
	case ipc.KindProposalV6:
		return e.handleProposalMsg(proposal.IPv6, m)
	default:
		log.Debugf("unhandled supervisor message %s", m.Kind)
	}
	return nil
}

// attachFrontend adopts the descriptor carried by a channel-handoff
// message as the direct frontend channel.
func (e *Engine) attachFrontend(m *ipc.Msg) error {
	if m.FD < 0 {
		return fmt.Errorf("engine: channel handoff without descriptor")
	}
	front, err := ipc.NewChannel(e.loop, m.FD, e.handleFrontend)
	if err != nil {
		return err
	}
	// The frontend going away is not our shutdown signal; the
	// supervisor channel is.
	front.OnClose(func() {})
	e.front = front
	return nil
}

// handleFrontend dispatches messages on the direct frontend channel.
// Nothing travels this way today; the channel exists so replies can.
func (e *Engine) handleFrontend(m *ipc.Msg) error {
	log.Debugf("unhandled frontend message %s", m.Kind)
	return nil
}

// answerShowInfo sends this process's introspection line to the
// frontend and closes the sequence.
func (e *Engine) answerShowInfo(peerID uint32) error {
	if e.front == nil {
		log.Warnf("show info requested before channel handoff")
		return nil
	}
	groups := 0
	if c := e.store.Active(); c != nil {
		groups = len(c.Groups)
	}
	info := []byte(fmt.Sprintf("engine: pid %d, %d groups", os.Getpid(), groups))
	if err := e.front.Send(ipc.KindCtlShowInfo, peerID, -1, info); err != nil {
		return err
	}
	return e.front.Send(ipc.KindCtlEnd, peerID, -1, nil)
}

func (e *Engine) handleProposalMsg(family proposal.Family, m *ipc.Msg) error {
	if err := m.SizeCheck(proposal.WireLen); err != nil {
		return err
	}
	p, err := proposal.Unmarshal(family, m.Data)
	if err != nil {
		return err
	}
	e.handleProposal(p)
	return nil
}

// handleProposal applies policy and, on acceptance, configures the
// proposed interface address and default route.
func (e *Engine) handleProposal(p *proposal.Proposal) {
	cfg := e.store.Active()
	if cfg == nil {
		log.Debugf("proposal xid %d before configuration, dropped", p.XID)
		return
	}
	name := e.ifName(p.Index)
	if name == "" {
		log.Warnf("proposal xid %d for unknown interface %d", p.XID, p.Index)
		return
	}
	if !e.policy.Accept(cfg, name, p) {
		log.Debugf("proposal xid %d for %s rejected by policy", p.XID, name)
		return
	}

	if p.Has(rtwire.SlotIfAddr) {
		e.inst.AddAddress(kroute.AddAddressRequest{
			Interface: name,
			Family:    p.Family,
			Addr:      p.IfAddr,
			Netmask:   p.Netmask,
		})
	}
	if p.Has(rtwire.SlotGateway) {
		e.inst.AddRoute(kroute.AddRouteRequest{
			Index:   p.Index,
			Addrs:   rtwire.BitDst | rtwire.BitGateway | rtwire.BitNetmask,
			Flags:   rtwire.FlagUp | rtwire.FlagGateway | rtwire.FlagStatic,
			Family:  p.Family,
			Gateway: p.Gateway,
		})
	}
	log.Infof("proposal xid %d applied to %s", p.XID, name)
}
