package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/slaclab/acclive/pkg/log"
	"github.com/slaclab/acclive/pkg/wire"
)

func startEchoServer(t *testing.T, logger log.Logger) (*Server, *sync.WaitGroup) {
	t.Helper()
	var disconnects sync.WaitGroup

	srv := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Logger:  logger,
		OnConnect: func(*ServerConn) {
			disconnects.Add(1)
		},
		OnDisconnect: func(*ServerConn) {
			disconnects.Done()
		},
		OnMessage: func(conn *ServerConn, msg []byte) {
			conn.Send(msg)
		},
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv, &disconnects
}

func TestServerEcho(t *testing.T) {
	srv, _ := startEchoServer(t, nil)

	conn, err := NewClient(ClientConfig{}).Connect(context.Background(), srv.Addr().String())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if err := conn.Send([]byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got, err := conn.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestServerAnswersPing(t *testing.T) {
	srv, _ := startEchoServer(t, nil)

	conn, err := NewClient(ClientConfig{}).Connect(context.Background(), srv.Addr().String())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if err := conn.SendPing(42); err != nil {
		t.Fatalf("SendPing failed: %v", err)
	}
	data, err := conn.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	msg, err := wire.DecodeControlMessage(data)
	if err != nil {
		t.Fatalf("DecodeControlMessage failed: %v", err)
	}
	if msg.Type != wire.ControlPong || msg.Sequence != 42 {
		t.Errorf("got %v/%d, want pong/42", msg.Type, msg.Sequence)
	}
}

func TestServerCloseHandshake(t *testing.T) {
	logger := &captureLogger{}
	srv, disconnects := startEchoServer(t, logger)

	conn, err := NewClient(ClientConfig{}).Connect(context.Background(), srv.Addr().String())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if err := conn.SendClose(); err != nil {
		t.Fatalf("SendClose failed: %v", err)
	}
	data, err := conn.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if msg, err := wire.DecodeControlMessage(data); err != nil || msg.Type != wire.ControlClose {
		t.Fatalf("expected close acknowledgement, got %v (%v)", msg, err)
	}

	disconnects.Wait()

	var states []string
	for _, e := range logger.snapshot() {
		if e.StateChange != nil {
			states = append(states, e.StateChange.NewState)
		}
	}
	if len(states) != 2 || states[0] != "CONNECTED" || states[1] != "DISCONNECTED" {
		t.Errorf("state events: got %v", states)
	}
}

func TestServerStopClosesConnections(t *testing.T) {
	srv := NewServer(ServerConfig{Address: "127.0.0.1:0"})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn, err := NewClient(ClientConfig{}).Connect(context.Background(), srv.Addr().String())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.ConnectionCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.ConnectionCount() != 1 {
		t.Fatalf("connection count: got %d, want 1", srv.ConnectionCount())
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if srv.ConnectionCount() != 0 {
		t.Errorf("connections left after Stop: %d", srv.ConnectionCount())
	}
	if _, err := conn.Receive(time.Second); err == nil {
		t.Errorf("expected read error after server stop")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Errorf("restart after Stop failed: %v", err)
	}
	srv.Stop()
}

func TestServerDoubleStart(t *testing.T) {
	srv := NewServer(ServerConfig{Address: "127.0.0.1:0"})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}
