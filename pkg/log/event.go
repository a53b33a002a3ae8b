package log

import (
	"time"

	"github.com/slaclab/acclive/pkg/wire"
)

// Event is one protocol event captured at any layer.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the connection (UUID, or circuit address on
	// the client side).
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// LocalRole is the role of the process that captured the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// PVName is set when the event concerns a single PV.
	PVName string `cbor:"8,keyasint,omitempty"`

	// Exactly one of these is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerService is the PV server / client layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role is the role of the capturing process on the PV network.
type Role uint8

const (
	RoleServer     Role = 0
	RoleClient     Role = 1
	RoleNameServer Role = 2
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleServer:
		return "SERVER"
	case RoleClient:
		return "CLIENT"
	case RoleNameServer:
		return "NAMESERVER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes, truncated for large frames.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded PV message at the wire layer.
type MessageEvent struct {
	Type      wire.MessageType `cbor:"1,keyasint"`
	MessageID uint32           `cbor:"2,keyasint,omitempty"`

	// Requests only.
	Operation *wire.Operation `cbor:"3,keyasint,omitempty"`

	// Responses only.
	Status *wire.Status `cbor:"4,keyasint,omitempty"`

	// Notifications only.
	SubscriptionID *uint32 `cbor:"5,keyasint,omitempty"`

	// Value is the PV value carried by a put or a notification.
	Value any `cbor:"6,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send.
	ProcessingTime *time.Duration `cbor:"7,keyasint,omitempty"`
}

// StateChangeEvent captures connection, circuit and subscription lifecycle.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection is a server-side TCP connection.
	StateEntityConnection StateEntity = 0
	// StateEntityCircuit is a client-side connection to a PV server.
	StateEntityCircuit StateEntity = 1
	// StateEntitySubscription is a monitor subscription.
	StateEntitySubscription StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityCircuit:
		return "CIRCUIT"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures transport-level control messages.
type ControlMsgEvent struct {
	Type     wire.ControlMessageType `cbor:"1,keyasint"`
	Sequence uint32                  `cbor:"2,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
