package config

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Fixed IPC payload sizes. Receivers reject any other length as a
// protocol violation.
const (
	ConfWireLen  = 28 + MaxText
	GroupWireLen = MaxGroupName + ConfWireLen
)

func putScalars(b []byte, yesno bool, integer int32, v4bits, v6bits uint8, v4, v6, text string) {
	if yesno {
		b[0] = 1
	}
	b[1] = v4bits
	b[2] = v6bits
	binary.NativeEndian.PutUint32(b[4:8], uint32(integer))
	if ip := net.ParseIP(v4); ip != nil {
		copy(b[8:12], ip.To4())
	}
	if ip := net.ParseIP(v6); ip != nil {
		copy(b[12:28], ip.To16())
	}
	copy(b[28:28+MaxText], text)
}

func getScalars(b []byte) (yesno bool, integer int32, v4bits, v6bits uint8, v4, v6, text string) {
	yesno = b[0] != 0
	v4bits = b[1]
	v6bits = b[2]
	integer = int32(binary.NativeEndian.Uint32(b[4:8]))
	if !allZero(b[8:12]) {
		v4 = net.IP(b[8:12]).String()
	}
	if !allZero(b[12:28]) {
		v6 = net.IP(b[12:28]).String()
	}
	text = cstring(b[28 : 28+MaxText])
	return
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// MarshalWire encodes the scalar part of the configuration. Groups
// travel as separate frames.
func (c *Config) MarshalWire() []byte {
	b := make([]byte, ConfWireLen)
	putScalars(b, c.YesNo, c.Integer, c.V4Bits, c.V6Bits, c.V4Address, c.V6Address, c.Text)
	return b
}

// UnmarshalWire decodes a scalar block into a configuration with an
// empty group list.
func UnmarshalWire(b []byte) (*Config, error) {
	if len(b) != ConfWireLen {
		return nil, fmt.Errorf("config payload is %d bytes, want %d", len(b), ConfWireLen)
	}
	c := &Config{}
	c.YesNo, c.Integer, c.V4Bits, c.V6Bits, c.V4Address, c.V6Address, c.Text = getScalars(b)
	return c, nil
}

// MarshalWire encodes one group record.
func (g *Group) MarshalWire() []byte {
	b := make([]byte, GroupWireLen)
	copy(b[:MaxGroupName], g.Name)
	putScalars(b[MaxGroupName:], g.YesNo, g.Integer, g.V4Bits, g.V6Bits, g.V4Address, g.V6Address, g.Text)
	return b
}

// UnmarshalGroupWire decodes one group record.
func UnmarshalGroupWire(b []byte) (*Group, error) {
	if len(b) != GroupWireLen {
		return nil, fmt.Errorf("group payload is %d bytes, want %d", len(b), GroupWireLen)
	}
	g := &Group{Name: cstring(b[:MaxGroupName])}
	g.YesNo, g.Integer, g.V4Bits, g.V6Bits, g.V4Address, g.V6Address, g.Text = getScalars(b[MaxGroupName:])
	return g, nil
}
