// Package rtwire implements the routing-socket wire format spoken by
// newd: the fixed message header, the variable-length address records
// that follow it, and the word-alignment rule that governs both.
//
// A message is a 40-byte header followed by zero or more address
// records. The header declares the total message length (header plus
// aligned records) and a presence bitmap naming which record slots are
// attached. Records appear in slot order; each record starts with its
// own declared length and family tag and is padded up to the next
// multiple of the platform word size.
//
// The constants here are the protocol contract between newd and the
// kernel routing channel. They are defined locally rather than imported
// so the decode and encode paths (and their tests) agree on exactly one
// source of truth.
//
// All multi-byte fields use host byte order, as the kernel writes them.
package rtwire
