package log

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pvlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, ev)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	now := time.Now()
	events := []Event{
		{Timestamp: now, ConnectionID: "conn-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: now, ConnectionID: "conn-2", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: now, ConnectionID: "conn-3", Direction: DirectionIn, Layer: LayerService, Category: CategoryState},
	}

	reader, err := NewReader(createTestLogFile(t, events))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].ConnectionID != "conn-1" || read[2].ConnectionID != "conn-3" {
		t.Errorf("events out of order: %q .. %q", read[0].ConnectionID, read[2].ConnectionID)
	}
	if !read[0].Timestamp.Equal(now) {
		t.Errorf("timestamp lost precision: got %v, want %v", read[0].Timestamp, now)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	reader, err := NewReader(createTestLogFile(t, nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFilteredReader(t *testing.T) {
	now := time.Now()
	client := RoleClient
	events := []Event{
		{Timestamp: now, ConnectionID: "abc-1", LocalRole: RoleServer, PVName: "BMAD:beta_a", Category: CategoryMessage},
		{Timestamp: now.Add(time.Second), ConnectionID: "abc-2", LocalRole: RoleClient, PVName: "test:KLYS:LI22:31:KPHR", Category: CategoryMessage},
		{Timestamp: now.Add(2 * time.Second), ConnectionID: "xyz-1", LocalRole: RoleClient, PVName: "test:QUAD:LI21:201:BDES", Category: CategoryError},
	}
	path := createTestLogFile(t, events)

	msg := CategoryMessage
	start := now.Add(500 * time.Millisecond)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"connection prefix", Filter{ConnectionID: "abc"}, 2},
		{"pv prefix", Filter{PVPrefix: "test:"}, 2},
		{"role", Filter{Role: &client}, 2},
		{"category", Filter{Category: &msg}, 2},
		{"time start", Filter{TimeStart: &start}, 2},
		{"combined", Filter{PVPrefix: "test:", Category: &msg}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()

			if got := len(readAll(t, reader)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestStreamReader(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 0; i < 4; i++ {
		if err := enc.Encode(Event{Timestamp: time.Now(), ConnectionID: "c", Category: CategoryControl}); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}

	reader := NewStreamReader(&buf, Filter{})
	if got := len(readAll(t, reader)); got != 4 {
		t.Errorf("got %d events, want 4", got)
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.pvlog")); err == nil {
		t.Error("expected error for missing file")
	}
}
