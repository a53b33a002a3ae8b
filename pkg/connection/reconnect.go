package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Manager errors.
var (
	ErrClosed           = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// State is the lifecycle state of a managed connection.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes the underlying connection.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Name identifies the connection in logs (typically the server address).
	Name string

	Backoff BackoffConfig

	// AttemptTimeout bounds each connect attempt (default 10s).
	AttemptTimeout time.Duration

	// DisableReconnect leaves the connection down after a loss.
	DisableReconnect bool

	Logger *slog.Logger

	OnStateChange  func(oldState, newState State)
	OnReconnecting func(attempt int, delay time.Duration)
}

// Manager keeps a connection up: after NotifyConnectionLost it redials
// with backoff until it succeeds or the manager is closed.
type Manager struct {
	cfg       ManagerConfig
	connectFn ConnectFunc
	backoff   *Backoff
	logger    *slog.Logger

	mu    sync.Mutex
	state State

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	reconnectCh chan struct{}
}

// NewManager creates a manager and starts its reconnect loop.
func NewManager(cfg ManagerConfig, connectFn ConnectFunc) *Manager {
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff.Jitter = JitterFactor
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:         cfg,
		connectFn:   connectFn,
		backoff:     NewBackoffWithConfig(cfg.Backoff),
		logger:      logger.With("conn", cfg.Name),
		state:       StateDisconnected,
		ctx:         ctx,
		cancel:      cancel,
		reconnectCh: make(chan struct{}, 1),
	}

	m.wg.Add(1)
	go m.reconnectLoop()
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the connection is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Connect makes the first connection attempt. When it fails and
// reconnection is enabled, the manager keeps retrying in the background
// and the error is still returned.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	}
	old := m.state
	m.state = StateConnecting
	m.mu.Unlock()
	m.notify(old, StateConnecting)

	attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
	err := m.connectFn(attemptCtx)
	cancel()

	if err == nil {
		m.setConnected(StateConnecting)
		return nil
	}

	m.logger.Debug("Connect failed", "error", err)
	m.lost(StateConnecting)
	return err
}

// NotifyConnectionLost reports that the underlying connection went down.
func (m *Manager) NotifyConnectionLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.lost(StateConnected)
}

// Close stops reconnection. It does not close the underlying connection.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateClosed
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.notify(old, StateClosed)
}

// BackoffAttempts returns the number of reconnect attempts since the last
// successful connection.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

func (m *Manager) lost(from State) {
	next := StateReconnecting
	if m.cfg.DisableReconnect {
		next = StateDisconnected
	}

	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		return
	}
	m.state = next
	m.mu.Unlock()
	m.notify(from, next)

	if next == StateReconnecting {
		select {
		case m.reconnectCh <- struct{}{}:
		default:
		}
	}
}

func (m *Manager) setConnected(from State) bool {
	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		return false
	}
	m.state = StateConnected
	m.mu.Unlock()

	m.backoff.Reset()
	m.notify(from, StateConnected)
	return true
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.reconnect()
		}
	}
}

func (m *Manager) reconnect() {
	for m.State() == StateReconnecting {
		delay := m.backoff.Current()
		attempt := m.backoff.Attempts() + 1
		if m.cfg.OnReconnecting != nil {
			m.cfg.OnReconnecting(attempt, delay)
		}
		if err := m.backoff.Wait(m.ctx); err != nil {
			return
		}
		if m.State() != StateReconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.AttemptTimeout)
		err := m.connectFn(ctx)
		cancel()

		if err == nil {
			if m.setConnected(StateReconnecting) {
				m.logger.Info("Reconnected", "attempts", attempt)
			}
			return
		}
		m.logger.Debug("Reconnect failed", "attempt", attempt, "error", err)
	}
}

func (m *Manager) notify(old, next State) {
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(old, next)
	}
}
