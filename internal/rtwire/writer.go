package rtwire

// MarshalRecord builds one wire address record for the given family.
// addr is the raw address (4 bytes for FamilyIPv4, 16 for FamilyIPv6).
// The returned slice is already padded to the alignment rule; the
// record's own length byte declares the unpadded length.
func MarshalRecord(family uint8, addr []byte) []byte {
	switch family {
	case FamilyIPv4:
		b := make([]byte, Align(RecordIPv4Len))
		b[0] = RecordIPv4Len
		b[1] = FamilyIPv4
		copy(b[4:8], addr)
		return b
	case FamilyIPv6:
		b := make([]byte, Align(RecordIPv6Len))
		b[0] = RecordIPv6Len
		b[1] = FamilyIPv6
		copy(b[8:24], addr)
		return b
	default:
		b := make([]byte, Align(2+len(addr)))
		b[0] = uint8(2 + len(addr))
		b[1] = family
		copy(b[2:], addr)
		return b
	}
}

// MessageWriter mirrors Cursor for the encode path. Every record
// written accumulates into the header's declared length, so that the
// length field is exact by the time the message is flushed.
type MessageWriter struct {
	hdr  Header
	recs [][]byte
}

// NewMessageWriter starts a message with the given header. The
// header's MsgLen and HdrLen are owned by the writer.
func NewMessageWriter(hdr Header) *MessageWriter {
	hdr.HdrLen = HeaderLen
	hdr.MsgLen = HeaderLen
	return &MessageWriter{hdr: hdr}
}

// WriteRecord appends one address record and grows the declared
// message length by the record's aligned size.
func (w *MessageWriter) WriteRecord(family uint8, addr []byte) {
	rec := MarshalRecord(family, addr)
	w.recs = append(w.recs, rec)
	w.hdr.MsgLen += uint16(len(rec))
}

// Header returns the header as it will be flushed, with the
// accumulated length.
func (w *MessageWriter) Header() Header {
	return w.hdr
}

// Vectors returns the message as a scatter-write vector: the marshaled
// header followed by each record in write order.
func (w *MessageWriter) Vectors() [][]byte {
	iov := make([][]byte, 0, len(w.recs)+1)
	iov = append(iov, w.hdr.Marshal())
	iov = append(iov, w.recs...)
	return iov
}

// Bytes returns the message flattened into one buffer.
func (w *MessageWriter) Bytes() []byte {
	out := make([]byte, 0, w.hdr.MsgLen)
	for _, v := range w.Vectors() {
		out = append(out, v...)
	}
	return out
}
