package bridge

import (
	"context"

	"github.com/slaclab/acclive/pkg/client"
)

// SourcePV is a monitored machine PV.
type SourcePV interface {
	Monitor(fn client.MonitorFunc)
}

// DestPV is a model PV written by the bridge.
type DestPV interface {
	Name() string
	Connected() bool
	Put(value any) error
}

// Connector hands out PV handles.
type Connector interface {
	Source(name string) SourcePV
	Destination(name string) DestPV
}

// EventLoop delivers monitor callbacks until ctx ends.
type EventLoop interface {
	PendEvents(ctx context.Context) error
}

// ClientConnector adapts a client.Context.
type ClientConnector struct {
	Context *client.Context
}

// Source implements Connector.
func (c ClientConnector) Source(name string) SourcePV { return c.Context.PV(name) }

// Destination implements Connector.
func (c ClientConnector) Destination(name string) DestPV { return c.Context.PV(name) }
