package rtwire

import "errors"

// ErrTruncated reports a framing violation: a header or record whose
// declared length does not fit the bytes that are actually there. It
// means producer and consumer have desynchronized, so callers treat it
// as fatal rather than attempting to resynchronize.
var ErrTruncated = errors.New("rtwire: truncated message")

// Record is one variable-length address record. Its first byte is the
// declared record length, its second the address-family tag; the
// layout of the rest depends on the family.
type Record struct {
	Len    uint8
	Family uint8

	raw []byte // the Len declared bytes, padding excluded
}

// Payload returns the record bytes after the length and family tag.
func (r Record) Payload() []byte {
	if len(r.raw) <= 2 {
		return nil
	}
	return r.raw[2:]
}

// IPv4 returns the 4 address bytes of an IPv4-shaped record. Short
// records yield zero bytes rather than garbage.
func (r Record) IPv4() [4]byte {
	var a [4]byte
	if len(r.raw) >= 8 {
		copy(a[:], r.raw[4:8])
	}
	return a
}

// IPv6 returns the 16 address bytes of an IPv6-shaped record. Short
// records yield zero bytes rather than garbage.
func (r Record) IPv6() [16]byte {
	var a [16]byte
	if len(r.raw) >= 24 {
		copy(a[:], r.raw[8:24])
	}
	return a
}

// Cursor is a bounds-checked reader over a buffer of concatenated
// routing messages. All reads fail with ErrTruncated instead of
// touching bytes outside the buffer.
type Cursor struct {
	buf []byte
	off int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset returns the current cursor position.
func (c *Cursor) Offset() int {
	return c.off
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// ReadHeader decodes the message header at the cursor and advances past
// it to the first record. The declared message length must fit the
// remaining buffer and enclose at least the header itself.
func (c *Cursor) ReadHeader() (Header, error) {
	if c.Remaining() < HeaderLen {
		return Header{}, ErrTruncated
	}
	h := parseHeader(c.buf[c.off:])
	if int(h.MsgLen) < HeaderLen || int(h.MsgLen) > c.Remaining() {
		return Header{}, ErrTruncated
	}
	if int(h.HdrLen) < HeaderLen || h.HdrLen > h.MsgLen {
		return Header{}, ErrTruncated
	}
	c.off += int(h.HdrLen)
	return h, nil
}

// ReadRecord decodes the address record at the cursor and advances by
// the record's declared length rounded up to the next multiple of
// WordSize. Padding past the end of the buffer is tolerated on the
// final record.
func (c *Cursor) ReadRecord() (Record, error) {
	if c.Remaining() < 2 {
		return Record{}, ErrTruncated
	}
	rl := int(c.buf[c.off])
	if rl < 2 || rl > c.Remaining() {
		return Record{}, ErrTruncated
	}
	rec := Record{
		Len:    c.buf[c.off],
		Family: c.buf[c.off+1],
		raw:    c.buf[c.off : c.off+rl],
	}
	c.off += Align(rl)
	if c.off > len(c.buf) {
		c.off = len(c.buf)
	}
	return rec, nil
}

// Slice returns the next n bytes and advances past them.
func (c *Cursor) Slice(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, ErrTruncated
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	if n < 0 || n > c.Remaining() {
		return ErrTruncated
	}
	c.off += n
	return nil
}
