package kroute

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/B4PzwL3YVGa6/newd/internal/proposal"
	"github.com/B4PzwL3YVGa6/newd/internal/rtwire"
)

type fakeRead struct {
	data []byte
	err  error
}

type fakeConn struct {
	reads  []fakeRead
	closed bool
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if len(c.reads) == 0 {
		return 0, unix.EAGAIN
	}
	r := c.reads[0]
	c.reads = c.reads[1:]
	if r.err != nil {
		return 0, r.err
	}
	return copy(p, r.data), nil
}

func (c *fakeConn) Close() error { c.closed = true; return nil }
func (c *fakeConn) Fd() int      { return -1 }

type fakeForwarder struct {
	got []*proposal.Proposal
	err error
}

func (f *fakeForwarder) ForwardProposal(p *proposal.Proposal) error {
	f.got = append(f.got, p)
	return f.err
}

func proposalMsg(t *testing.T, family uint8, gw []byte) []byte {
	t.Helper()
	w := rtwire.NewMessageWriter(rtwire.Header{
		Version: rtwire.Version,
		Type:    rtwire.MsgProposal,
		Addrs:   rtwire.BitGateway,
		Seq:     7,
	})
	w.WriteRecord(family, gw)
	return w.Bytes()
}

func TestMonitorForwardsDecodedProposals(t *testing.T) {
	msg := proposalMsg(t, rtwire.FamilyIPv4, []byte{192, 0, 2, 1})
	conn := &fakeConn{reads: []fakeRead{{data: msg}}}
	fwd := &fakeForwarder{}
	m := NewMonitor(conn, fwd, func() {})
	require.NoError(t, m.Init())
	assert.Equal(t, StateListening, m.State())

	require.NoError(t, m.OnReadable())
	require.Len(t, fwd.got, 1)
	assert.Equal(t, proposal.IPv4, fwd.got[0].Family)
	assert.Equal(t, "192.0.2.1", fwd.got[0].GatewayIP().String())
}

func TestMonitorWouldBlockIsSilent(t *testing.T) {
	conn := &fakeConn{}
	fwd := &fakeForwarder{}
	m := NewMonitor(conn, fwd, func() {})
	require.NoError(t, m.Init())

	require.NoError(t, m.OnReadable())
	assert.Empty(t, fwd.got)
	assert.Equal(t, StateListening, m.State())
}

func TestMonitorZeroReadShutsDown(t *testing.T) {
	conn := &fakeConn{reads: []fakeRead{{data: nil}}}
	fwd := &fakeForwarder{}
	var shutdowns int
	m := NewMonitor(conn, fwd, func() { shutdowns++ })
	require.NoError(t, m.Init())

	require.NoError(t, m.OnReadable())
	assert.Equal(t, 1, shutdowns)
	assert.Equal(t, StateClosed, m.State())
	assert.Empty(t, fwd.got)
}

func TestMonitorReadErrorIsFatal(t *testing.T) {
	conn := &fakeConn{reads: []fakeRead{{err: unix.EBADF}}}
	m := NewMonitor(conn, &fakeForwarder{}, func() {})
	require.NoError(t, m.Init())

	assert.Error(t, m.OnReadable())
}

func TestMonitorTruncatedStreamIsFatal(t *testing.T) {
	msg := proposalMsg(t, rtwire.FamilyIPv4, []byte{192, 0, 2, 1})
	conn := &fakeConn{reads: []fakeRead{{data: msg[:len(msg)-4]}}}
	m := NewMonitor(conn, &fakeForwarder{}, func() {})
	require.NoError(t, m.Init())

	err := m.OnReadable()
	require.Error(t, err)
	assert.ErrorIs(t, err, rtwire.ErrTruncated)
}

func TestMonitorForwarderErrorPropagates(t *testing.T) {
	msg := proposalMsg(t, rtwire.FamilyIPv4, []byte{192, 0, 2, 1})
	conn := &fakeConn{reads: []fakeRead{{data: msg}}}
	fwd := &fakeForwarder{err: errors.New("pipe gone")}
	m := NewMonitor(conn, fwd, func() {})
	require.NoError(t, m.Init())

	assert.Error(t, m.OnReadable())
}

func TestMonitorDoubleInit(t *testing.T) {
	m := NewMonitor(&fakeConn{}, &fakeForwarder{}, func() {})
	require.NoError(t, m.Init())
	assert.Error(t, m.Init())
}

func TestNegotiateRcvBuf(t *testing.T) {
	t.Run("max accepted first try", func(t *testing.T) {
		var set []int
		got := negotiateRcvBuf(16*1024, 128*1024, func(v int) error {
			set = append(set, v)
			return nil
		})
		assert.Equal(t, 128*1024, got)
		assert.Equal(t, []int{128 * 1024}, set)
	})

	t.Run("halves on exhaustion", func(t *testing.T) {
		var set []int
		got := negotiateRcvBuf(16*1024, 128*1024, func(v int) error {
			set = append(set, v)
			if v > 32*1024 {
				return unix.ENOBUFS
			}
			return nil
		})
		assert.Equal(t, 32*1024, got)
		assert.Equal(t, []int{128 * 1024, 64 * 1024, 32 * 1024}, set)
	})

	t.Run("keeps default when nothing sticks", func(t *testing.T) {
		got := negotiateRcvBuf(16*1024, 128*1024, func(v int) error {
			return unix.ENOBUFS
		})
		assert.Equal(t, 16*1024, got)
	})

	t.Run("non-exhaustion refusal stops the descent", func(t *testing.T) {
		calls := 0
		got := negotiateRcvBuf(16*1024, 128*1024, func(v int) error {
			calls++
			return unix.EINVAL
		})
		assert.Equal(t, 16*1024, got)
		assert.Equal(t, 1, calls)
	})
}
