package log

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/slaclab/acclive/pkg/wire"
)

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.pvlog")

	for round := 0; round < 2; round++ {
		fl, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		fl.Log(Event{Timestamp: time.Now(), ConnectionID: "c", Category: CategoryState})
		fl.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	if got := len(readAll(t, reader)); got != 2 {
		t.Errorf("got %d events, want 2", got)
	}
}

func TestFileLoggerMessagePayload(t *testing.T) {
	op := wire.OpPut
	path := createTestLogFile(t, []Event{{
		Timestamp: time.Now(),
		Layer:     LayerWire,
		Category:  CategoryMessage,
		PVName:    "test:KLYS:LI22:31:KPHR",
		Message: &MessageEvent{
			Type:      wire.MessageTypeRequest,
			MessageID: 12,
			Operation: &op,
			Value:     -42.5,
		},
	}})

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	events := readAll(t, reader)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	msg := events[0].Message
	if msg == nil {
		t.Fatal("message payload lost")
	}
	if msg.Operation == nil || *msg.Operation != wire.OpPut {
		t.Errorf("operation: got %v", msg.Operation)
	}
	if msg.Value != -42.5 {
		t.Errorf("value: got %#v", msg.Value)
	}
	if events[0].PVName != "test:KLYS:LI22:31:KPHR" {
		t.Errorf("pv name: got %q", events[0].PVName)
	}
}

func TestFileLoggerConcurrentAndClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.pvlog")
	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				fl.Log(Event{Timestamp: time.Now(), Category: CategoryMessage})
			}
		}()
	}
	wg.Wait()

	if err := fl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	fl.Log(Event{Timestamp: time.Now()})

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	if got := len(readAll(t, reader)); got != 200 {
		t.Errorf("got %d events, want 200", got)
	}
	if fl.Dropped() != 0 {
		t.Errorf("dropped %d events", fl.Dropped())
	}
}
