// Package transport carries PV network frames over TCP.
//
//	┌────────────────────────────────┐
//	│   CBOR messages (pkg/wire)     │
//	├────────────────────────────────┤
//	│   Length-prefix framing (4B)   │
//	├────────────────────────────────┤
//	│             TCP                │
//	└────────────────────────────────┘
//
// PV networks live inside the control network and are unauthenticated, as
// with Channel Access. Frames may be large: a lattice-wide array such as
// the flattened transfer matrices runs to hundreds of kilobytes, so the
// default frame limit is 16 MiB.
//
// Liveness is checked with ping/pong control messages. By default a client
// pings every 15 seconds and gives up after two missed pongs.
package transport
