package frontend

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B4PzwL3YVGa6/newd/internal/config"
	"github.com/B4PzwL3YVGa6/newd/internal/ipc"
)

type sentFrame struct {
	kind    ipc.Kind
	peerID  uint32
	payload []byte
}

type fakeSender struct {
	frames []sentFrame
}

func (s *fakeSender) Send(kind ipc.Kind, peerID uint32, fd int, payload []byte) error {
	s.frames = append(s.frames, sentFrame{kind, peerID, append([]byte(nil), payload...)})
	return nil
}

func testFrontend() (*Frontend, *fakeSender) {
	parent := &fakeSender{}
	return &Frontend{parent: parent, conns: make(map[uint32]sender)}, parent
}

func msg(kind ipc.Kind, peerID uint32, payload []byte) *ipc.Msg {
	return &ipc.Msg{Header: ipc.Header{Kind: kind, PeerID: peerID}, Data: payload, FD: -1}
}

func TestReloadForwardedToSupervisor(t *testing.T) {
	f, parent := testFrontend()

	require.NoError(t, f.handleControl(7, msg(ipc.KindCtlReload, 0, nil)))
	require.Len(t, parent.frames, 1)
	assert.Equal(t, ipc.KindCtlReload, parent.frames[0].kind)
	assert.Equal(t, uint32(7), parent.frames[0].peerID)
}

func TestVerboseForwardedWithPayload(t *testing.T) {
	f, parent := testFrontend()

	var payload [4]byte
	binary.NativeEndian.PutUint32(payload[:], 1)
	require.NoError(t, f.handleControl(3, msg(ipc.KindCtlLogVerbose, 0, payload[:])))
	require.Len(t, parent.frames, 1)
	assert.Equal(t, ipc.KindCtlLogVerbose, parent.frames[0].kind)
	assert.Equal(t, payload[:], parent.frames[0].payload)
}

func TestVerboseBadSizeDropsRequest(t *testing.T) {
	f, parent := testFrontend()

	// Malformed client input must not take the daemon down.
	require.NoError(t, f.handleControl(3, msg(ipc.KindCtlLogVerbose, 0, []byte{1})))
	assert.Empty(t, parent.frames)
}

func TestShowInfoAnswersAndForwards(t *testing.T) {
	f, parent := testFrontend()
	conn := &fakeSender{}
	f.conns[5] = conn

	require.NoError(t, f.handleControl(5, msg(ipc.KindCtlShowInfo, 0, nil)))

	require.Len(t, conn.frames, 1)
	assert.Equal(t, ipc.KindCtlShowInfo, conn.frames[0].kind)
	assert.Contains(t, string(conn.frames[0].payload), "frontend")

	require.Len(t, parent.frames, 1)
	assert.Equal(t, ipc.KindCtlShowInfo, parent.frames[0].kind)
	assert.Equal(t, uint32(5), parent.frames[0].peerID)
}

func TestUnknownControlKindIgnored(t *testing.T) {
	f, parent := testFrontend()
	require.NoError(t, f.handleControl(1, msg(ipc.Kind(404), 0, nil)))
	assert.Empty(t, parent.frames)
}

func TestRelayRoutesByPeerID(t *testing.T) {
	f, _ := testFrontend()
	a, b := &fakeSender{}, &fakeSender{}
	f.conns[1] = a
	f.conns[2] = b

	require.NoError(t, f.handleParent(msg(ipc.KindCtlShowInfo, 2, []byte("supervisor: info"))))
	assert.Empty(t, a.frames)
	require.Len(t, b.frames, 1)
	assert.Equal(t, []byte("supervisor: info"), b.frames[0].payload)
}

func TestRelayToGoneConnectionDropped(t *testing.T) {
	f, _ := testFrontend()
	require.NoError(t, f.handleParent(msg(ipc.KindCtlEnd, 9, nil)))
}

func TestEngineRepliesRelayed(t *testing.T) {
	f, _ := testFrontend()
	conn := &fakeSender{}
	f.conns[4] = conn

	require.NoError(t, f.handleEngine(msg(ipc.KindCtlShowInfo, 4, []byte("engine: info"))))
	require.NoError(t, f.handleEngine(msg(ipc.KindCtlEnd, 4, nil)))

	require.Len(t, conn.frames, 2)
	assert.Equal(t, ipc.KindCtlShowInfo, conn.frames[0].kind)
	assert.Equal(t, ipc.KindCtlEnd, conn.frames[1].kind)
}

func TestConfigStagingAtomic(t *testing.T) {
	f, _ := testFrontend()

	c := &config.Config{Integer: 5}
	require.NoError(t, f.handleParent(msg(ipc.KindReconfConf, 0, c.MarshalWire())))
	assert.Nil(t, f.store.Active())

	g := &config.Group{Name: "em0"}
	require.NoError(t, f.handleParent(msg(ipc.KindReconfGroup, 0, g.MarshalWire())))
	assert.Nil(t, f.store.Active())

	require.NoError(t, f.handleParent(msg(ipc.KindReconfEnd, 0, nil)))
	require.NotNil(t, f.store.Active())
	assert.Equal(t, int32(5), f.store.Active().Integer)
	assert.Len(t, f.store.Active().Groups, 1)
}

func TestConfigSizeMismatchFatal(t *testing.T) {
	f, _ := testFrontend()
	assert.Error(t, f.handleParent(msg(ipc.KindReconfConf, 0, []byte{1})))
}

func TestHandoffWithoutDescriptorFatal(t *testing.T) {
	f, _ := testFrontend()
	assert.Error(t, f.handleParent(msg(ipc.KindSocketIPC, 0, nil)))
}
