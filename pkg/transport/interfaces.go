package transport

import (
	"net"
	"time"
)

// ServerConnection is the server side of a connection. Implemented by
// ServerConn; PV server tests substitute fakes.
type ServerConnection interface {
	ConnID() string
	RemoteAddr() net.Addr
	Send(data []byte) error
	Done() <-chan struct{}
	Close() error
}

// ClientConnection is a synchronous client connection.
type ClientConnection interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Send(data []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

// FrameReadWriter provides length-prefixed frame I/O.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

var (
	_ ServerConnection = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
)
