package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/slaclab/acclive/pkg/log"
	"github.com/slaclab/acclive/pkg/wire"
)

var baseTime = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func writeCapture(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pvlog")
	fl, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		fl.Log(e)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func sampleEvents() []log.Event {
	put := wire.OpPut
	get := wire.OpGet
	ok := wire.StatusSuccess
	took := 1500 * time.Microsecond
	sub := uint32(3)
	return []log.Event{
		{
			Timestamp:    baseTime,
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionIn,
			Layer:        log.LayerService,
			Category:     log.CategoryState,
			LocalRole:    log.RoleServer,
			RemoteAddr:   "127.0.0.1:50123",
			StateChange:  &log.StateChangeEvent{Entity: log.StateEntityConnection, NewState: "CONNECTED"},
		},
		{
			Timestamp:    baseTime.Add(time.Second),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			LocalRole:    log.RoleServer,
			PVName:       "BMAD:QUAD:LI21:201:BCTRL",
			Message:      &log.MessageEvent{Type: wire.MessageTypeRequest, MessageID: 7, Operation: &put, Value: -4.5},
		},
		{
			Timestamp:    baseTime.Add(2 * time.Second),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionOut,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			LocalRole:    log.RoleServer,
			PVName:       "BMAD:QUAD:LI21:201:BCTRL",
			Message:      &log.MessageEvent{Type: wire.MessageTypeResponse, MessageID: 7, Status: &ok, ProcessingTime: &took},
		},
		{
			Timestamp:    baseTime.Add(3 * time.Second),
			ConnectionID: "fff00000-1111",
			Direction:    log.DirectionOut,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			LocalRole:    log.RoleServer,
			PVName:       "BMAD:ele.a.beta",
			Message:      &log.MessageEvent{Type: wire.MessageTypeNotification, SubscriptionID: &sub, Value: []float64{1, 2}},
		},
		{
			Timestamp:    baseTime.Add(4 * time.Second),
			ConnectionID: "fff00000-1111",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			LocalRole:    log.RoleServer,
			PVName:       "BMAD:ele.a.beta",
			Message:      &log.MessageEvent{Type: wire.MessageTypeRequest, MessageID: 8, Operation: &get},
		},
		{
			Timestamp:    baseTime.Add(5 * time.Second),
			ConnectionID: "fff00000-1111",
			Direction:    log.DirectionIn,
			Layer:        log.LayerTransport,
			Category:     log.CategoryError,
			LocalRole:    log.RoleServer,
			Error:        &log.ErrorEventData{Layer: log.LayerTransport, Message: "frame too large", Context: "reading frame"},
		},
	}
}
