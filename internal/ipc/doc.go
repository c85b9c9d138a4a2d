// Package ipc implements the framed message bus connecting the three
// newd processes over unix stream socketpairs.
//
// Every message is a 16-byte header (kind, length, flags, peer id,
// originating pid) followed by the payload; the length field covers
// header plus payload. At most one file descriptor rides along per
// message, transferred with SCM_RIGHTS and owned by the receiver from
// the moment it is delivered.
//
// Transport is loop-agnostic: it exposes OnReadable/OnWritable and a
// pending-write indicator, and the owning process wires those into its
// event loop. Delivery is ordered per channel; there is no ordering
// across channels.
package ipc
