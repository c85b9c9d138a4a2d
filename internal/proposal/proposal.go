// Package proposal defines the decoded form of a kernel network
// proposal and the decoder that produces it from raw routing-socket
// buffers.
//
// A proposal is a candidate address/route/DNS configuration for one
// interface, emitted by an autoconfiguration mechanism through the
// kernel routing channel. The decoder classifies each message by
// address family and copies out exactly the fields whose presence bits
// are set; everything else stays zero-valued.
package proposal

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/B4PzwL3YVGa6/newd/internal/rtwire"
)

// Family is the address family of a decoded proposal.
type Family uint8

const (
	IPv4 Family = 4
	IPv6 Family = 6
)

func (f Family) String() string {
	if f == IPv4 {
		return "IPv4"
	}
	return "IPv6"
}

// Sizes of the opaque extension payloads copied verbatim from the
// kernel message.
const (
	StaticLen = 128
	SearchLen = 128
	MaxDNS    = 4
)

// Proposal is one decoded kernel notification. Address-shaped fields
// are meaningful only when their slot bit is set in Addrs; IPv4
// addresses occupy the first 4 bytes of their field.
type Proposal struct {
	Family Family

	Addrs  uint32 // address-presence bitmap
	Inits  uint32 // init-flags bitmap
	Flags  uint32
	XID    uint32 // transaction id (kernel sequence number)
	Index  uint16 // interface index
	Source uint8  // originating priority
	MTU    uint32 // valid only when Inits&rtwire.InitMTU is set

	RtStatic      [StaticLen]byte // static-route blob, verbatim
	RtSearch      [SearchLen]byte // search-domain blob, verbatim
	SearchEncoded bool            // compact (family-tagged) search encoding

	Gateway [16]byte
	IfAddr  [16]byte
	Netmask [16]byte
	DNS     [MaxDNS][16]byte
}

// Has reports whether the record slot's presence bit is set.
func (p *Proposal) Has(slot int) bool {
	return p.Addrs&rtwire.Bit(slot) != 0
}

func (p *Proposal) ip(a *[16]byte) net.IP {
	if p.Family == IPv4 {
		return net.IP(a[0:4])
	}
	return net.IP(a[0:16])
}

// GatewayIP returns the gateway address, or nil if its bit is unset.
func (p *Proposal) GatewayIP() net.IP {
	if !p.Has(rtwire.SlotGateway) {
		return nil
	}
	return p.ip(&p.Gateway)
}

// IfAddrIP returns the interface address, or nil if its bit is unset.
func (p *Proposal) IfAddrIP() net.IP {
	if !p.Has(rtwire.SlotIfAddr) {
		return nil
	}
	return p.ip(&p.IfAddr)
}

// NetmaskIP returns the netmask, or nil if its bit is unset.
func (p *Proposal) NetmaskIP() net.IP {
	if !p.Has(rtwire.SlotNetmask) {
		return nil
	}
	return p.ip(&p.Netmask)
}

// DNSIP returns the i'th DNS server address, or nil if its bit is unset.
func (p *Proposal) DNSIP(i int) net.IP {
	if i < 0 || i >= MaxDNS || !p.Has(rtwire.SlotDNS1+i) {
		return nil
	}
	return p.ip(&p.DNS[i])
}

func (p *Proposal) String() string {
	return fmt.Sprintf("%s proposal xid=%d if=%d source=%d addrs=%#x",
		p.Family, p.XID, p.Index, p.Source, p.Addrs)
}

// WireLen is the fixed size of a proposal on the IPC channel. Receivers
// reject any other payload length as a protocol violation.
const WireLen = 392

// Marshal encodes the proposal into its fixed-size IPC payload. The
// family travels in the message kind, not the payload.
func (p *Proposal) Marshal() []byte {
	b := make([]byte, WireLen)
	ord := binary.NativeEndian
	ord.PutUint32(b[0:4], p.Addrs)
	ord.PutUint32(b[4:8], p.Inits)
	ord.PutUint32(b[8:12], p.Flags)
	ord.PutUint32(b[12:16], p.XID)
	ord.PutUint32(b[16:20], p.MTU)
	ord.PutUint16(b[20:22], p.Index)
	b[22] = p.Source
	if p.SearchEncoded {
		b[23] = 1
	}
	copy(b[24:152], p.RtStatic[:])
	copy(b[152:280], p.RtSearch[:])
	copy(b[280:296], p.Gateway[:])
	copy(b[296:312], p.IfAddr[:])
	copy(b[312:328], p.Netmask[:])
	for i := 0; i < MaxDNS; i++ {
		copy(b[328+16*i:344+16*i], p.DNS[i][:])
	}
	return b
}

// Unmarshal decodes a fixed-size IPC payload into a proposal of the
// given family. A payload of any other length is a protocol violation.
func Unmarshal(family Family, b []byte) (*Proposal, error) {
	if len(b) != WireLen {
		return nil, fmt.Errorf("proposal payload is %d bytes, want %d", len(b), WireLen)
	}
	ord := binary.NativeEndian
	p := &Proposal{
		Family:        family,
		Addrs:         ord.Uint32(b[0:4]),
		Inits:         ord.Uint32(b[4:8]),
		Flags:         ord.Uint32(b[8:12]),
		XID:           ord.Uint32(b[12:16]),
		MTU:           ord.Uint32(b[16:20]),
		Index:         ord.Uint16(b[20:22]),
		Source:        b[22],
		SearchEncoded: b[23] != 0,
	}
	copy(p.RtStatic[:], b[24:152])
	copy(p.RtSearch[:], b[152:280])
	copy(p.Gateway[:], b[280:296])
	copy(p.IfAddr[:], b[296:312])
	copy(p.Netmask[:], b[312:328])
	for i := 0; i < MaxDNS; i++ {
		copy(p.DNS[i][:], b[328+16*i:344+16*i])
	}
	return p, nil
}
