// Package wire defines the CBOR wire format for the PV network.
//
// Every frame carries a single CBOR map with integer keys. Key 0 holds the
// message kind so a receiver can route a frame without decoding it fully.
//
// # Message Kinds
//
//   - Request: client to server (Get, Put, Monitor, Search, Info, Register)
//   - Response: server to client, correlated by message ID
//   - Notification: server to client, pushed for an active monitor
//   - Control: transport-level ping/pong/close
//
// # Values
//
// PV values travel as plain CBOR data. After decoding they are normalized
// by NormalizeValue into one of: nil, bool, int64, float64, string,
// []float64, []int64 or []string. A nil value means "no data"; it is
// distinct from a zero value.
package wire
