package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B4PzwL3YVGa6/newd/internal/config"
	"github.com/B4PzwL3YVGa6/newd/internal/ipc"
	"github.com/B4PzwL3YVGa6/newd/internal/kroute"
	"github.com/B4PzwL3YVGa6/newd/internal/proposal"
	"github.com/B4PzwL3YVGa6/newd/internal/rtwire"
)

type fakeInstaller struct {
	addrs  []kroute.AddAddressRequest
	routes []kroute.AddRouteRequest
}

func (f *fakeInstaller) AddAddress(r kroute.AddAddressRequest) { f.addrs = append(f.addrs, r) }
func (f *fakeInstaller) AddRoute(r kroute.AddRouteRequest)     { f.routes = append(f.routes, r) }

func testEngine(groups ...*config.Group) (*Engine, *fakeInstaller) {
	inst := &fakeInstaller{}
	e := &Engine{
		inst:   inst,
		policy: GroupPolicy{},
		ifName: func(index uint16) string {
			if index == 3 {
				return "em0"
			}
			return ""
		},
	}
	e.store.BeginUpdate(&config.Config{})
	for _, g := range groups {
		e.store.AddGroup(g)
	}
	e.store.Commit()
	return e, inst
}

func confMsg(kind ipc.Kind, payload []byte) *ipc.Msg {
	return &ipc.Msg{Header: ipc.Header{Kind: kind}, Data: payload, FD: -1}
}

func TestGroupPolicy(t *testing.T) {
	cfg := &config.Config{Groups: []*config.Group{
		{Name: "em0", YesNo: true},
		{Name: "em1", YesNo: false},
		{Name: "em0", YesNo: false}, // duplicate; first match decides
	}}
	p := &proposal.Proposal{}

	var pol GroupPolicy
	assert.True(t, pol.Accept(cfg, "em0", p))
	assert.False(t, pol.Accept(cfg, "em1", p))
	assert.False(t, pol.Accept(cfg, "em2", p))
}

func TestProposalInstallsAddressAndDefaultRoute(t *testing.T) {
	e, inst := testEngine(&config.Group{Name: "em0", YesNo: true})

	p := &proposal.Proposal{
		Family: proposal.IPv4,
		Addrs:  rtwire.BitIfAddr | rtwire.BitNetmask | rtwire.BitGateway,
		Index:  3,
		XID:    9,
	}
	p.IfAddr[0], p.IfAddr[1], p.IfAddr[2], p.IfAddr[3] = 192, 0, 2, 10
	p.Netmask[0], p.Netmask[1], p.Netmask[2] = 255, 255, 255
	p.Gateway[0], p.Gateway[1], p.Gateway[2], p.Gateway[3] = 192, 0, 2, 1
	e.handleProposal(p)

	require.Len(t, inst.addrs, 1)
	assert.Equal(t, "em0", inst.addrs[0].Interface)
	assert.Equal(t, p.IfAddr, inst.addrs[0].Addr)
	assert.Equal(t, p.Netmask, inst.addrs[0].Netmask)

	require.Len(t, inst.routes, 1)
	r := inst.routes[0]
	assert.Equal(t, uint16(3), r.Index)
	assert.Equal(t, uint32(rtwire.BitDst|rtwire.BitGateway|rtwire.BitNetmask), r.Addrs)
	assert.Equal(t, p.Gateway, r.Gateway)
	assert.Equal(t, [16]byte{}, r.Dst)
}

func TestProposalWithoutGatewaySkipsRoute(t *testing.T) {
	e, inst := testEngine(&config.Group{Name: "em0", YesNo: true})

	p := &proposal.Proposal{
		Family: proposal.IPv4,
		Addrs:  rtwire.BitIfAddr | rtwire.BitNetmask,
		Index:  3,
	}
	e.handleProposal(p)

	assert.Len(t, inst.addrs, 1)
	assert.Empty(t, inst.routes)
}

func TestProposalRejectedByPolicy(t *testing.T) {
	e, inst := testEngine(&config.Group{Name: "em0", YesNo: false})

	e.handleProposal(&proposal.Proposal{
		Family: proposal.IPv4,
		Addrs:  rtwire.BitIfAddr,
		Index:  3,
	})
	assert.Empty(t, inst.addrs)
	assert.Empty(t, inst.routes)
}

func TestProposalBeforeConfigurationDropped(t *testing.T) {
	inst := &fakeInstaller{}
	e := &Engine{inst: inst, policy: GroupPolicy{}, ifName: func(uint16) string { return "em0" }}

	e.handleProposal(&proposal.Proposal{Addrs: rtwire.BitIfAddr, Index: 3})
	assert.Empty(t, inst.addrs)
}

func TestProposalUnknownInterfaceDropped(t *testing.T) {
	e, inst := testEngine(&config.Group{Name: "em0", YesNo: true})

	e.handleProposal(&proposal.Proposal{Addrs: rtwire.BitIfAddr, Index: 9})
	assert.Empty(t, inst.addrs)
}

func TestConfigSequenceStagedAdoption(t *testing.T) {
	e, _ := testEngine()

	next := &config.Config{Integer: 42}
	require.NoError(t, e.handleParent(confMsg(ipc.KindReconfConf, next.MarshalWire())))
	g := &config.Group{Name: "em1", YesNo: true}
	require.NoError(t, e.handleParent(confMsg(ipc.KindReconfGroup, g.MarshalWire())))

	// Nothing adopted until the end marker.
	assert.Equal(t, int32(0), e.store.Active().Integer)

	require.NoError(t, e.handleParent(confMsg(ipc.KindReconfEnd, nil)))
	require.NotNil(t, e.store.Active())
	assert.Equal(t, int32(42), e.store.Active().Integer)
	require.Len(t, e.store.Active().Groups, 1)
	assert.Equal(t, "em1", e.store.Active().Groups[0].Name)
}

func TestConfigSizeMismatchFatal(t *testing.T) {
	e, _ := testEngine()
	err := e.handleParent(confMsg(ipc.KindReconfConf, []byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestProposalSizeMismatchFatal(t *testing.T) {
	e, _ := testEngine()
	err := e.handleParent(confMsg(ipc.KindProposalV4, make([]byte, proposal.WireLen-1)))
	assert.Error(t, err)
}

func TestGroupBeforeConfFatal(t *testing.T) {
	inst := &fakeInstaller{}
	e := &Engine{inst: inst, policy: GroupPolicy{}, ifName: func(uint16) string { return "" }}

	g := &config.Group{Name: "em0"}
	err := e.handleParent(confMsg(ipc.KindReconfGroup, g.MarshalWire()))
	assert.ErrorIs(t, err, config.ErrNoStagedConfig)
}

func TestUnknownKindIgnored(t *testing.T) {
	e, _ := testEngine()
	assert.NoError(t, e.handleParent(confMsg(ipc.Kind(999), nil)))
}

func TestHandoffWithoutDescriptorFatal(t *testing.T) {
	e, _ := testEngine()
	err := e.handleParent(confMsg(ipc.KindSocketIPC, nil))
	assert.Error(t, err)
}
