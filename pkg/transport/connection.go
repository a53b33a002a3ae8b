package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slaclab/acclive/pkg/log"
	"github.com/slaclab/acclive/pkg/wire"
)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrCloseTimeout     = errors.New("close timeout")
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")
)

// ConnectionConfig configures an asynchronous client connection.
type ConnectionConfig struct {
	// MaxMessageSize is the maximum frame payload (default 16 MiB).
	MaxMessageSize uint32

	KeepAlive KeepAliveConfig

	// DisableKeepAlive turns off ping/pong monitoring.
	DisableKeepAlive bool

	// CloseTimeout bounds the graceful close handshake (default 2s).
	CloseTimeout time.Duration

	// WriteTimeout bounds each frame write (0 = none).
	WriteTimeout time.Duration

	// Logger for protocol capture (optional).
	Logger log.Logger

	// ID tags protocol events; the remote address is used when empty.
	ID string
}

// DefaultConnectionConfig returns the default connection configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxMessageSize: DefaultMaxMessageSize,
		KeepAlive:      DefaultKeepAliveConfig(),
		CloseTimeout:   2 * time.Second,
	}
}

// ConnectionHandler receives connection events. Callbacks run on the
// connection's read goroutine and must not block for long.
type ConnectionHandler interface {
	OnMessage(msg []byte)
	OnStateChange(oldState, newState ConnectionState)
	OnError(err error)
}

// Connection is a full-duplex client connection with its own read loop
// and keep-alive. A Connection is used once: after it closes, dial a new
// one.
type Connection struct {
	config  ConnectionConfig
	handler ConnectionHandler

	conn      net.Conn
	framer    *Framer
	keepAlive *KeepAlive

	state     atomic.Int32
	closeOnce sync.Once
	closeDone chan struct{}

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection creates a connection that is not yet connected.
func NewConnection(config ConnectionConfig, handler ConnectionHandler) *Connection {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.CloseTimeout == 0 {
		config.CloseTimeout = 2 * time.Second
	}
	c := &Connection{
		config:    config,
		handler:   handler,
		closeDone: make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Connect dials address and starts the read loop and keep-alive.
func (c *Connection) Connect(ctx context.Context, address string) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.notifyStateChange(StateDisconnected, StateConnecting)

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.notifyStateChange(StateConnecting, StateDisconnected)
		return fmt.Errorf("dial %s failed: %w", address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	id := c.config.ID
	if id == "" {
		id = address
	}
	framer := NewFramerWithMaxSize(conn, c.config.MaxMessageSize)
	if c.config.Logger != nil {
		framer.SetLogger(c.config.Logger, id, log.RoleClient)
	}

	// The connection outlives the dial context.
	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.conn = conn
	c.framer = framer
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))
	c.notifyStateChange(StateConnecting, StateConnected)

	if !c.config.DisableKeepAlive {
		c.startKeepAlive()
	}
	go c.readLoop()

	return nil
}

// Send writes one frame.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return c.send(data)
}

func (c *Connection) send(data []byte) error {
	c.mu.RLock()
	framer, conn := c.framer, c.conn
	c.mu.RUnlock()
	if framer == nil {
		return ErrNotConnected
	}
	if c.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	return framer.WriteFrame(data)
}

// SendControlMessage sends a ping, pong or close.
func (c *Connection) SendControlMessage(msgType wire.ControlMessageType, seq uint32) error {
	data, err := wire.EncodeControlMessage(&wire.ControlMessage{Type: msgType, Sequence: seq})
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}
	return c.send(data)
}

// Close performs the close handshake, waiting at most CloseTimeout for the
// peer's acknowledgement.
func (c *Connection) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		current := c.State()
		if current != StateConnected {
			c.teardown(current)
			return
		}
		c.state.Store(int32(StateClosing))
		c.notifyStateChange(current, StateClosing)

		if err := c.SendControlMessage(wire.ControlClose, 0); err == nil {
			select {
			case <-c.closeDone:
			case <-time.After(c.config.CloseTimeout):
				closeErr = ErrCloseTimeout
			}
		}
		c.teardown(StateClosing)
	})
	return closeErr
}

// ForceClose closes the socket without a handshake.
func (c *Connection) ForceClose() {
	c.closeOnce.Do(func() {
		c.teardown(c.State())
	})
}

func (c *Connection) teardown(from ConnectionState) {
	if c.keepAlive != nil {
		c.keepAlive.Stop()
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	c.state.Store(int32(StateDisconnected))
	if from != StateDisconnected {
		c.notifyStateChange(from, StateDisconnected)
	}
}

// Done is closed when the read loop has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.closeDone
}

// RemoteAddr returns the remote network address, or nil when not connected.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn != nil {
		return c.conn.RemoteAddr()
	}
	return nil
}

func (c *Connection) startKeepAlive() {
	c.keepAlive = NewKeepAlive(
		c.config.KeepAlive,
		func(seq uint32) error {
			return c.SendControlMessage(wire.ControlPing, seq)
		},
		func() {
			c.handler.OnError(ErrKeepAliveTimeout)
			go c.ForceClose()
		},
	)
	c.keepAlive.Start(c.ctx)
}

func (c *Connection) readLoop() {
	defer close(c.closeDone)

	c.mu.RLock()
	framer, ctx := c.framer, c.ctx
	c.mu.RUnlock()

	for {
		data, err := framer.ReadFrame()
		if err != nil {
			if c.State() == StateClosing || ctx.Err() != nil {
				return
			}
			c.handler.OnError(fmt.Errorf("read error: %w", err))
			go c.ForceClose()
			return
		}

		if msgType, _ := wire.PeekMessageType(data); msgType == wire.MessageTypeControl {
			if ctrl, err := wire.DecodeControlMessage(data); err == nil {
				if c.handleControlMessage(ctrl) {
					return
				}
				continue
			}
		}

		c.handler.OnMessage(data)
	}
}

// handleControlMessage reports whether the read loop should stop.
func (c *Connection) handleControlMessage(msg *wire.ControlMessage) bool {
	switch msg.Type {
	case wire.ControlPing:
		c.SendControlMessage(wire.ControlPong, msg.Sequence)
	case wire.ControlPong:
		if c.keepAlive != nil {
			c.keepAlive.PongReceived(msg.Sequence)
		}
	case wire.ControlClose:
		if c.State() == StateClosing {
			// Acknowledgement of our own close.
			return true
		}
		c.SendControlMessage(wire.ControlClose, 0)
		go c.ForceClose()
		return true
	}
	return false
}

func (c *Connection) notifyStateChange(oldState, newState ConnectionState) {
	if c.handler != nil {
		c.handler.OnStateChange(oldState, newState)
	}
}
