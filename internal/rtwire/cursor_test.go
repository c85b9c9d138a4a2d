package rtwire

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		MsgLen:   HeaderLen,
		Version:  Version,
		Type:     MsgProposal,
		HdrLen:   HeaderLen,
		Index:    3,
		TableID:  7,
		Priority: 8,
		Addrs:    BitGateway | BitIfAddr,
		Flags:    0x401,
		Inits:    InitMTU,
		Seq:      42,
		PID:      1234,
		MTU:      1500,
	}

	got := parseHeader(h.Marshal())
	if got != h {
		t.Errorf("header round trip mismatch:\n got %+v\nwant %+v", got, h)
	}
}

func TestReadHeaderTruncatedBuffer(t *testing.T) {
	c := NewCursor(make([]byte, HeaderLen-1))
	if _, err := c.ReadHeader(); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadHeader on short buffer: err = %v, want ErrTruncated", err)
	}
}

func TestReadHeaderDeclaredLengthExceedsBuffer(t *testing.T) {
	h := Header{Version: Version, Type: MsgProposal, HdrLen: HeaderLen}
	h.MsgLen = HeaderLen + 64 // claims records that are not there

	c := NewCursor(h.Marshal())
	if _, err := c.ReadHeader(); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadHeader with oversized declared length: err = %v, want ErrTruncated", err)
	}
}

func TestReadHeaderBogusHdrLen(t *testing.T) {
	h := Header{MsgLen: HeaderLen, Version: Version, HdrLen: HeaderLen / 2}
	c := NewCursor(h.Marshal())
	if _, err := c.ReadHeader(); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadHeader with HdrLen < HeaderLen: err = %v, want ErrTruncated", err)
	}
}

func TestReadRecordAlignment(t *testing.T) {
	// An IPv6 record declares 28 bytes; the cursor must advance to the
	// next word boundary (32). An IPv4 record declares 16 and needs no
	// padding.
	buf := append(MarshalRecord(FamilyIPv6, make([]byte, 16)),
		MarshalRecord(FamilyIPv4, []byte{1, 2, 3, 4})...)

	c := NewCursor(buf)

	rec, err := c.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if rec.Len != RecordIPv6Len || rec.Family != FamilyIPv6 {
		t.Errorf("first record: len=%d family=%d", rec.Len, rec.Family)
	}
	if c.Offset() != Align(RecordIPv6Len) {
		t.Errorf("cursor after unaligned record: offset = %d, want %d",
			c.Offset(), Align(RecordIPv6Len))
	}

	rec, err = c.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if got := rec.IPv4(); got != [4]byte{1, 2, 3, 4} {
		t.Errorf("second record address = %v", got)
	}
	if c.Offset() != Align(RecordIPv6Len)+RecordIPv4Len {
		t.Errorf("aligned record must not be followed by padding: offset = %d", c.Offset())
	}
}

func TestReadRecordTruncated(t *testing.T) {
	buf := MarshalRecord(FamilyIPv4, []byte{9, 9, 9, 9})
	buf[0] = 64 // declared length beyond the buffer

	c := NewCursor(buf)
	if _, err := c.ReadRecord(); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadRecord with oversized declared length: err = %v, want ErrTruncated", err)
	}
}

func TestShortRecordYieldsZeroAddress(t *testing.T) {
	// A record too short to hold an address must decode to zero bytes,
	// never to neighboring memory.
	buf := []byte{4, FamilyIPv4, 0, 0}
	c := NewCursor(buf)
	rec, err := c.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if rec.IPv4() != [4]byte{} {
		t.Errorf("short record address = %v, want zero", rec.IPv4())
	}
	if rec.IPv6() != [16]byte{} {
		t.Errorf("short record v6 address nonzero")
	}
}

func TestMessageWriterAccumulatesLength(t *testing.T) {
	w := NewMessageWriter(Header{Version: Version, Type: MsgAdd})
	w.WriteRecord(FamilyIPv4, []byte{10, 0, 0, 0})
	w.WriteRecord(FamilyIPv4, []byte{10, 0, 0, 1})
	w.WriteRecord(FamilyIPv6, make([]byte, 16))

	want := HeaderLen + 2*RecordIPv4Len + Align(RecordIPv6Len)
	if got := int(w.Header().MsgLen); got != want {
		t.Errorf("accumulated MsgLen = %d, want %d", got, want)
	}
	if got := len(w.Bytes()); got != want {
		t.Errorf("flattened message length = %d, want %d", got, want)
	}
}

func TestMessageWriterRoundTrip(t *testing.T) {
	w := NewMessageWriter(Header{
		Version: Version,
		Type:    MsgAdd,
		TableID: 2,
		Addrs:   BitDst | BitGateway,
	})
	w.WriteRecord(FamilyIPv4, []byte{192, 168, 1, 0})
	w.WriteRecord(FamilyIPv4, []byte{192, 168, 1, 1})

	c := NewCursor(w.Bytes())
	h, err := c.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Type != MsgAdd || h.TableID != 2 || h.Addrs != BitDst|BitGateway {
		t.Errorf("decoded header %+v", h)
	}

	dst, err := c.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord dst: %v", err)
	}
	gw, err := c.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord gateway: %v", err)
	}
	if dst.IPv4() != [4]byte{192, 168, 1, 0} || gw.IPv4() != [4]byte{192, 168, 1, 1} {
		t.Errorf("decoded records dst=%v gw=%v", dst.IPv4(), gw.IPv4())
	}
	if c.Remaining() != 0 {
		t.Errorf("trailing bytes after message: %d", c.Remaining())
	}
}

func TestRecordPayload(t *testing.T) {
	payload := []byte("example.com example.net")
	rec := MarshalRecord(FamilyUnspec, payload)

	c := NewCursor(rec)
	got, err := c.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !bytes.Equal(got.Payload(), payload) {
		t.Errorf("payload = %q, want %q", got.Payload(), payload)
	}
}

func TestAlign(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 0}, {1, 8}, {7, 8}, {8, 8}, {9, 16}, {16, 16}, {28, 32},
	}
	for _, tc := range cases {
		if got := Align(tc.in); got != tc.want {
			t.Errorf("Align(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
