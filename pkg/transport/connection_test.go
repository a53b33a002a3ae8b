package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages [][]byte
	states   []ConnectionState
	errs     []error
	msgCh    chan []byte
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{msgCh: make(chan []byte, 16)}
}

func (h *recordingHandler) OnMessage(msg []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
	h.msgCh <- msg
}

func (h *recordingHandler) OnStateChange(_, newState ConnectionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, newState)
}

func (h *recordingHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *recordingHandler) lastState() ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.states) == 0 {
		return StateDisconnected
	}
	return h.states[len(h.states)-1]
}

func TestConnectionRoundTrip(t *testing.T) {
	srv, _ := startEchoServer(t, nil)
	h := newRecordingHandler()

	conn := NewConnection(DefaultConnectionConfig(), h)
	if err := conn.Connect(context.Background(), srv.Addr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if conn.State() != StateConnected {
		t.Fatalf("state: got %v, want CONNECTED", conn.State())
	}

	if err := conn.Send([]byte("frame")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case got := <-h.msgCh:
		if string(got) != "frame" {
			t.Errorf("got %q, want %q", got, "frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state after close: got %v", conn.State())
	}
	if h.lastState() != StateDisconnected {
		t.Errorf("last reported state: got %v", h.lastState())
	}
	if err := conn.Send([]byte("late")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectionDialFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	h := newRecordingHandler()
	conn := NewConnection(DefaultConnectionConfig(), h)
	if err := conn.Connect(context.Background(), addr); err == nil {
		t.Fatal("expected dial error")
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state: got %v, want DISCONNECTED", conn.State())
	}
}

func TestConnectionDoubleConnect(t *testing.T) {
	srv, _ := startEchoServer(t, nil)
	conn := NewConnection(DefaultConnectionConfig(), newRecordingHandler())
	if err := conn.Connect(context.Background(), srv.Addr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.ForceClose()

	if err := conn.Connect(context.Background(), srv.Addr().String()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestConnectionPeerClose(t *testing.T) {
	srv, _ := startEchoServer(t, nil)
	h := newRecordingHandler()

	conn := NewConnection(DefaultConnectionConfig(), h)
	if err := conn.Connect(context.Background(), srv.Addr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	srv.Stop()

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit after peer close")
	}

	deadline := time.Now().Add(2 * time.Second)
	for conn.State() != StateDisconnected && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state: got %v, want DISCONNECTED", conn.State())
	}
}

func TestConnectionKeepAliveTimeout(t *testing.T) {
	// A raw listener that never answers pings.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 1024)
		for {
			if _, err := c.Read(buf); err != nil {
				return
			}
		}
	}()

	h := newRecordingHandler()
	cfg := DefaultConnectionConfig()
	cfg.KeepAlive = KeepAliveConfig{PingInterval: 20 * time.Millisecond, PongTimeout: 10 * time.Millisecond, MaxMissedPongs: 2}

	conn := NewConnection(cfg, h)
	if err := conn.Connect(context.Background(), l.Addr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive did not close the connection")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	found := false
	for _, e := range h.errs {
		if errors.Is(e, ErrKeepAliveTimeout) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected ErrKeepAliveTimeout, got %v", h.errs)
	}
}
