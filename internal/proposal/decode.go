package proposal

import (
	"github.com/B4PzwL3YVGa6/newd/internal/rtwire"
)

// DecodeAll decodes a buffer of concatenated routing messages and
// returns the proposals it contains, in message order. Messages with a
// foreign protocol version or a non-proposal type are skipped whole.
//
// A framing violation (rtwire.ErrTruncated) is returned to the caller;
// it is fatal to the owning process because the message boundaries are
// no longer trustworthy.
func DecodeAll(buf []byte) ([]*Proposal, error) {
	var out []*Proposal

	c := rtwire.NewCursor(buf)
	for c.Remaining() > 0 {
		h, err := c.ReadHeader()
		if err != nil {
			return nil, err
		}
		body, err := c.Slice(int(h.MsgLen) - int(h.HdrLen))
		if err != nil {
			return nil, err
		}
		if h.Version != rtwire.Version {
			continue
		}
		if h.Type != rtwire.MsgProposal {
			// Not ours. Ignored, not forwarded.
			continue
		}

		p, err := decodeOne(h, body)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// decodeOne walks the fixed slot table over one message's record
// region. Slots whose presence bit is unset are absent and do not
// advance the cursor.
func decodeOne(h rtwire.Header, body []byte) (*Proposal, error) {
	var recs [rtwire.SlotMax]*rtwire.Record

	family := IPv6
	rc := rtwire.NewCursor(body)
	for slot := 0; slot < rtwire.SlotMax; slot++ {
		if h.Addrs&rtwire.Bit(slot) == 0 {
			continue
		}
		rec, err := rc.ReadRecord()
		if err != nil {
			return nil, err
		}
		if rec.Family == rtwire.FamilyIPv4 {
			family = IPv4
		}
		r := rec
		recs[slot] = &r
	}

	p := &Proposal{
		Family: family,
		Addrs:  h.Addrs,
		Inits:  h.Inits,
		Flags:  h.Flags,
		XID:    h.Seq,
		Index:  h.Index,
		Source: h.Priority,
	}
	if h.Inits&rtwire.InitMTU != 0 {
		p.MTU = h.MTU
	}

	if r := recs[rtwire.SlotStatic]; r != nil {
		copy(p.RtStatic[:], r.Payload())
	}
	if r := recs[rtwire.SlotSearch]; r != nil {
		if r.Family == rtwire.FamilyIPv6 {
			p.SearchEncoded = true
		}
		copy(p.RtSearch[:], r.Payload())
	}

	copyAddr(family, &p.Gateway, recs[rtwire.SlotGateway])
	copyAddr(family, &p.IfAddr, recs[rtwire.SlotIfAddr])
	copyAddr(family, &p.Netmask, recs[rtwire.SlotNetmask])
	for i := 0; i < MaxDNS; i++ {
		copyAddr(family, &p.DNS[i], recs[rtwire.SlotDNS1+i])
	}

	return p, nil
}

func copyAddr(family Family, dst *[16]byte, rec *rtwire.Record) {
	if rec == nil {
		return
	}
	if family == IPv4 {
		a := rec.IPv4()
		copy(dst[:4], a[:])
	} else {
		a := rec.IPv6()
		copy(dst[:], a[:])
	}
}
