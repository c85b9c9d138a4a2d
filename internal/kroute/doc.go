// Package kroute owns both ends of newd's conversation with the
// kernel routing channel.
//
// The Monitor reads raw notification buffers from the routing socket,
// runs them through the proposal decoder, and forwards every proposal
// to the engine over IPC. The Installer goes the other way: it encodes
// address and route requests into device-control and route-write
// messages and issues them. Each direction owns its kernel descriptor
// exclusively; the two never share one.
package kroute
