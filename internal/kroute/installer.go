package kroute

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/B4PzwL3YVGa6/newd/internal/log"
	"github.com/B4PzwL3YVGa6/newd/internal/proposal"
	"github.com/B4PzwL3YVGa6/newd/internal/rtwire"
)

// IfNameSize is the fixed interface-name field of an alias request,
// including the terminating NUL.
const IfNameSize = 16

// aliasRecordLen is the per-address record inside an alias request,
// large enough for either family.
const aliasRecordLen = 32

// AliasRequestLen is the kernel address-management request size:
// interface name plus address and netmask records.
const AliasRequestLen = IfNameSize + 2*aliasRecordLen

// RouteWriter issues configuration messages on the write-only routing
// channel. Writev matches the scatter layout produced by
// rtwire.MessageWriter.
type RouteWriter interface {
	Writev(iovs [][]byte) (int, error)
}

// DevCtl issues interface address management requests to the kernel.
type DevCtl interface {
	AddAddress(family proposal.Family, req []byte) error
	DeleteAddress(family proposal.Family, req []byte) error
}

// AddAddressRequest configures one address on an interface.
type AddAddressRequest struct {
	Interface string
	Family    proposal.Family
	Addr      [16]byte
	Netmask   [16]byte
}

// DeleteAddressRequest removes one address from an interface.
type DeleteAddressRequest struct {
	Interface string
	Family    proposal.Family
	Addr      [16]byte
}

// AddRouteRequest installs one route. Addrs selects which of the
// optional records are present; records are emitted in slot order.
type AddRouteRequest struct {
	Index   uint16
	Table   uint16
	Addrs   uint32
	Flags   uint32
	Family  proposal.Family
	Dst     [16]byte
	Gateway [16]byte
	Netmask [16]byte
	IfAddr  [16]byte
}

// DeleteRouteRequest removes one route. Destination, gateway, and
// netmask are always present.
type DeleteRouteRequest struct {
	Table   uint16
	Family  proposal.Family
	Dst     [16]byte
	Gateway [16]byte
	Netmask [16]byte
}

// Installer encodes configuration requests and hands them to the
// kernel. Request failures are logged and do not stop the caller;
// the kernel remains authoritative and later proposals retry.
type Installer struct {
	route RouteWriter
	dev   DevCtl
	seq   uint32
}

func NewInstaller(route RouteWriter, dev DevCtl) *Installer {
	return &Installer{route: route, dev: dev}
}

// wireFamily maps the proposal family tag onto the record family byte.
func wireFamily(f proposal.Family) uint8 {
	if f == proposal.IPv6 {
		return rtwire.FamilyIPv6
	}
	return rtwire.FamilyIPv4
}

// rawAddr trims the fixed address buffer to the family's length.
func rawAddr(f proposal.Family, addr [16]byte) []byte {
	if f == proposal.IPv6 {
		return addr[:]
	}
	return addr[:4]
}

func putAliasRecord(dst []byte, family proposal.Family, addr [16]byte) {
	rec := rtwire.MarshalRecord(wireFamily(family), rawAddr(family, addr))
	copy(dst, rec)
}

func aliasName(dst []byte, name string) {
	n := copy(dst, name)
	if n >= IfNameSize {
		dst[IfNameSize-1] = 0
	}
}

// AddAddress builds and issues an add-address request.
func (in *Installer) AddAddress(req AddAddressRequest) {
	var blob [AliasRequestLen]byte
	aliasName(blob[:IfNameSize], req.Interface)
	putAliasRecord(blob[IfNameSize:IfNameSize+aliasRecordLen], req.Family, req.Addr)
	putAliasRecord(blob[IfNameSize+aliasRecordLen:], req.Family, req.Netmask)

	if err := in.dev.AddAddress(req.Family, blob[:]); err != nil {
		log.Warnf("add address on %s: %v", req.Interface, err)
	}
}

// DeleteAddress builds and issues a delete-address request. A missing
// address is not an error; deletion is idempotent.
func (in *Installer) DeleteAddress(req DeleteAddressRequest) {
	var blob [AliasRequestLen]byte
	aliasName(blob[:IfNameSize], req.Interface)
	putAliasRecord(blob[IfNameSize:IfNameSize+aliasRecordLen], req.Family, req.Addr)

	err := in.dev.DeleteAddress(req.Family, blob[:])
	if err != nil && !errors.Is(err, unix.EADDRNOTAVAIL) {
		log.Warnf("delete address on %s: %v", req.Interface, err)
	}
}

// AddRoute encodes an add-route message and writes it in one gather
// call. Failure is logged; the route may already exist or the target
// interface may have gone away.
func (in *Installer) AddRoute(req AddRouteRequest) {
	in.seq++
	w := rtwire.NewMessageWriter(rtwire.Header{
		Version:  rtwire.Version,
		Type:     rtwire.MsgAdd,
		Index:    req.Index,
		TableID:  req.Table,
		Priority: rtwire.PrioNone,
		Addrs:    req.Addrs,
		Flags:    req.Flags,
		Seq:      in.seq,
	})
	fam := wireFamily(req.Family)
	if req.Addrs&rtwire.BitDst != 0 {
		w.WriteRecord(fam, rawAddr(req.Family, req.Dst))
	}
	if req.Addrs&rtwire.BitGateway != 0 {
		w.WriteRecord(fam, rawAddr(req.Family, req.Gateway))
	}
	if req.Addrs&rtwire.BitNetmask != 0 {
		w.WriteRecord(fam, rawAddr(req.Family, req.Netmask))
	}
	if req.Addrs&rtwire.BitIfAddr != 0 {
		w.WriteRecord(fam, rawAddr(req.Family, req.IfAddr))
	}

	if _, err := in.route.Writev(w.Vectors()); err != nil {
		log.Warnf("add route: %v", err)
	}
}

// DeleteRoute encodes a delete-route message carrying the fixed
// destination, gateway, and netmask records.
func (in *Installer) DeleteRoute(req DeleteRouteRequest) {
	in.seq++
	w := rtwire.NewMessageWriter(rtwire.Header{
		Version:  rtwire.Version,
		Type:     rtwire.MsgDelete,
		TableID:  req.Table,
		Priority: rtwire.PrioNone,
		Addrs:    rtwire.BitDst | rtwire.BitGateway | rtwire.BitNetmask,
		Seq:      in.seq,
	})
	fam := wireFamily(req.Family)
	w.WriteRecord(fam, rawAddr(req.Family, req.Dst))
	w.WriteRecord(fam, rawAddr(req.Family, req.Gateway))
	w.WriteRecord(fam, rawAddr(req.Family, req.Netmask))

	if _, err := in.route.Writev(w.Vectors()); err != nil && !errors.Is(err, unix.ESRCH) {
		log.Warnf("delete route: %v", err)
	}
}
