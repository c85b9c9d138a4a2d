package rtwire

import "encoding/binary"

// WordSize is the alignment unit for address records. A record whose
// declared length is not a multiple of WordSize is followed by padding
// up to the next multiple.
const WordSize = 8

// Version is the routing-message protocol version this daemon speaks.
// Messages carrying any other version are skipped, not decoded.
const Version = 1

// Message types. Only MsgProposal is acted upon by the decoder; MsgAdd
// and MsgDelete are produced by the encode path.
const (
	MsgAdd      = 0x01
	MsgDelete   = 0x02
	MsgProposal = 0x13
)

// Address-record slots, in the fixed order they appear on the wire.
// The first eight are the standard routing slots; the remainder are
// the autoconfiguration extension slots.
const (
	SlotDst     = 0  // destination
	SlotGateway = 1  // gateway
	SlotNetmask = 2  // netmask
	SlotGenmask = 3  // generic mask
	SlotLink    = 4  // link-level interface
	SlotIfAddr  = 5  // interface address
	SlotAuthor  = 6  // author of redirect
	SlotBroker  = 7  // broadcast/point-to-point peer
	SlotStatic  = 8  // static-route list
	SlotSearch  = 9  // DNS search-domain list
	SlotDNS1    = 10 // DNS servers, four sequential slots
	SlotDNS2    = 11
	SlotDNS3    = 12
	SlotDNS4    = 13

	SlotMax = 14
)

// Presence-bitmap masks for the slots used by the encode path.
const (
	BitDst     = 1 << SlotDst
	BitGateway = 1 << SlotGateway
	BitNetmask = 1 << SlotNetmask
	BitIfAddr  = 1 << SlotIfAddr
)

// Bit returns the presence-bitmap mask for a slot.
func Bit(slot int) uint32 {
	return 1 << uint(slot)
}

// Address-family tags carried in the second byte of every record.
const (
	FamilyUnspec = 0
	FamilyIPv4   = 2
	FamilyIPv6   = 24
)

// Init-flags bitmap: which scalar header attributes carry meaning.
const (
	InitMTU = 0x1
)

// Route flags carried in the header Flags field by the encode path.
const (
	FlagUp      = 0x1
	FlagGateway = 0x2
	FlagStatic  = 0x800
)

// Route priorities for the encode path. PrioNone is the lowest.
const (
	PrioNone = 0
)

// Record lengths as declared in the record's own length byte. The IPv6
// record is not word-aligned on its own; Align pads it to 32 bytes.
const (
	RecordIPv4Len = 16
	RecordIPv6Len = 28
)

// Align rounds n up to the next multiple of WordSize. An already
// aligned n is returned unchanged.
func Align(n int) int {
	if n%WordSize == 0 {
		return n
	}
	return n + WordSize - n%WordSize
}

// HeaderLen is the size of the fixed message header.
const HeaderLen = 40

// Header is the fixed routing-message header. MsgLen covers the whole
// message including aligned records; HdrLen is the offset of the first
// record from the start of the message.
type Header struct {
	MsgLen   uint16
	Version  uint8
	Type     uint8
	HdrLen   uint16
	Index    uint16
	TableID  uint16
	Priority uint8
	Addrs    uint32
	Flags    uint32
	Inits    uint32
	Seq      uint32
	PID      uint32
	Errno    uint32
	MTU      uint32
}

// Marshal encodes the header into a fresh HeaderLen-sized buffer.
func (h Header) Marshal() []byte {
	b := make([]byte, HeaderLen)
	ord := binary.NativeEndian
	ord.PutUint16(b[0:2], h.MsgLen)
	b[2] = h.Version
	b[3] = h.Type
	ord.PutUint16(b[4:6], h.HdrLen)
	ord.PutUint16(b[6:8], h.Index)
	ord.PutUint16(b[8:10], h.TableID)
	b[10] = h.Priority
	ord.PutUint32(b[12:16], h.Addrs)
	ord.PutUint32(b[16:20], h.Flags)
	ord.PutUint32(b[20:24], h.Inits)
	ord.PutUint32(b[24:28], h.Seq)
	ord.PutUint32(b[28:32], h.PID)
	ord.PutUint32(b[32:36], h.Errno)
	ord.PutUint32(b[36:40], h.MTU)
	return b
}

func parseHeader(b []byte) Header {
	ord := binary.NativeEndian
	return Header{
		MsgLen:   ord.Uint16(b[0:2]),
		Version:  b[2],
		Type:     b[3],
		HdrLen:   ord.Uint16(b[4:6]),
		Index:    ord.Uint16(b[6:8]),
		TableID:  ord.Uint16(b[8:10]),
		Priority: b[10],
		Addrs:    ord.Uint32(b[12:16]),
		Flags:    ord.Uint32(b[16:20]),
		Inits:    ord.Uint32(b[20:24]),
		Seq:      ord.Uint32(b[24:28]),
		PID:      ord.Uint32(b[28:32]),
		Errno:    ord.Uint32(b[32:36]),
		MTU:      ord.Uint32(b[36:40]),
	}
}
