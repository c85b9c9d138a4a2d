package ipc

import (
	"encoding/binary"
	"fmt"
)

// Kind tags every IPC message with its meaning. Unknown kinds are
// logged and ignored by dispatchers so the protocol can grow.
type Kind uint32

const (
	KindNone Kind = iota

	// Control surface, forwarded by the frontend.
	KindCtlReload
	KindCtlLogVerbose
	KindCtlShowInfo
	KindCtlEnd

	// Configuration distribution. Receivers adopt the staged
	// configuration only when the end marker arrives.
	KindReconfConf
	KindReconfGroup
	KindReconfEnd

	// Channel handoff: no payload, one descriptor.
	KindSocketIPC

	// Decoded kernel proposals, tagged by family.
	KindProposalV4
	KindProposalV6
)

func (k Kind) String() string {
	switch k {
	case KindCtlReload:
		return "CTL_RELOAD"
	case KindCtlLogVerbose:
		return "CTL_LOG_VERBOSE"
	case KindCtlShowInfo:
		return "CTL_SHOW_INFO"
	case KindCtlEnd:
		return "CTL_END"
	case KindReconfConf:
		return "RECONF_CONF"
	case KindReconfGroup:
		return "RECONF_GROUP"
	case KindReconfEnd:
		return "RECONF_END"
	case KindSocketIPC:
		return "SOCKET_IPC"
	case KindProposalV4:
		return "PROPOSAL_V4"
	case KindProposalV6:
		return "PROPOSAL_V6"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

const (
	// HeaderLen is the fixed frame header size.
	HeaderLen = 16

	// MaxLen bounds one frame, header included.
	MaxLen = 16384

	// flagFD marks a frame with an attached descriptor.
	flagFD uint16 = 0x1
)

// Header is the wire header of one frame. Len covers header + payload.
type Header struct {
	Kind   Kind
	Len    uint16
	Flags  uint16
	PeerID uint32
	PID    uint32
}

// Msg is one received message. FD is the attached descriptor or -1;
// ownership passes to the handler.
type Msg struct {
	Header
	Data []byte
	FD   int
}

// SizeCheck validates a fixed-size kind's payload length. A mismatch
// is a protocol violation the caller must treat as fatal.
func (m *Msg) SizeCheck(n int) error {
	if len(m.Data) != n {
		return fmt.Errorf("%s payload is %d bytes, want %d", m.Kind, len(m.Data), n)
	}
	return nil
}

func marshalHeader(h Header) []byte {
	b := make([]byte, HeaderLen)
	ord := binary.NativeEndian
	ord.PutUint32(b[0:4], uint32(h.Kind))
	ord.PutUint16(b[4:6], h.Len)
	ord.PutUint16(b[6:8], h.Flags)
	ord.PutUint32(b[8:12], h.PeerID)
	ord.PutUint32(b[12:16], h.PID)
	return b
}

func parseHeader(b []byte) Header {
	ord := binary.NativeEndian
	return Header{
		Kind:   Kind(ord.Uint32(b[0:4])),
		Len:    ord.Uint16(b[4:6]),
		Flags:  ord.Uint16(b[6:8]),
		PeerID: ord.Uint32(b[8:12]),
		PID:    ord.Uint32(b[12:16]),
	}
}
