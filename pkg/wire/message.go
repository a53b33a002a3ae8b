package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CBOR map keys shared by all message kinds.
const (
	KeyKind       = 0
	KeyMessageID  = 1
	KeyOpOrStatus = 2 // Operation (request) or Status (response)
)

// MessageID 0 is reserved for messages that are not correlated with a
// request (notifications and control messages).
const NotificationMessageID uint32 = 0

// ErrNoPayload is returned when decoding a payload that was not sent.
var ErrNoPayload = errors.New("no payload")

// Request represents a request message from a client to a server.
//
// CBOR encoding:
//
//	{
//	  0: kind,         // 1 = request
//	  1: messageId,    // uint32
//	  2: operation,    // uint8
//	  3: name,         // PV name (absent for cancel/register)
//	  4: payload       // operation-specific data
//	}
type Request struct {
	Kind      MessageType     `cbor:"0,keyasint"`
	MessageID uint32          `cbor:"1,keyasint"`
	Operation Operation       `cbor:"2,keyasint"`
	Name      string          `cbor:"3,keyasint,omitempty"`
	Payload   cbor.RawMessage `cbor:"4,keyasint,omitempty"`
}

// NewRequest builds a request, encoding payload when it is not nil.
func NewRequest(messageID uint32, op Operation, name string, payload any) (*Request, error) {
	req := &Request{
		Kind:      MessageTypeRequest,
		MessageID: messageID,
		Operation: op,
		Name:      name,
	}
	if payload != nil {
		raw, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", op, err)
		}
		req.Payload = raw
	}
	return req, nil
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == NotificationMessageID {
		return fmt.Errorf("messageId 0 is reserved for notifications")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	if r.Operation.RequiresName() && r.Name == "" {
		return fmt.Errorf("%s requires a PV name", r.Operation)
	}
	return nil
}

// DecodePayload decodes the request payload into v.
func (r *Request) DecodePayload(v any) error {
	return decodeRaw(r.Payload, v)
}

// Response represents a response message from a server to a client.
//
// CBOR encoding:
//
//	{
//	  0: kind,         // 2 = response
//	  1: messageId,    // uint32: matches request
//	  2: status,       // uint8: 0=success, or error code
//	  3: payload       // operation-specific response data
//	}
type Response struct {
	Kind      MessageType     `cbor:"0,keyasint"`
	MessageID uint32          `cbor:"1,keyasint"`
	Status    Status          `cbor:"2,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// NewResponse builds a response, encoding payload when it is not nil.
func NewResponse(messageID uint32, status Status, payload any) (*Response, error) {
	resp := &Response{
		Kind:      MessageTypeResponse,
		MessageID: messageID,
		Status:    status,
	}
	if payload != nil {
		raw, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode response payload: %w", err)
		}
		resp.Payload = raw
	}
	return resp, nil
}

// ErrorResponse builds a failed response carrying a human-readable message.
func ErrorResponse(messageID uint32, status Status, message string) *Response {
	resp, err := NewResponse(messageID, status, &ErrorPayload{Message: message})
	if err != nil {
		return &Response{Kind: MessageTypeResponse, MessageID: messageID, Status: status}
	}
	return resp
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// DecodePayload decodes the response payload into v.
func (r *Response) DecodePayload(v any) error {
	return decodeRaw(r.Payload, v)
}

// ErrorMessage returns the message of an error payload, if any.
func (r *Response) ErrorMessage() string {
	var ep ErrorPayload
	if err := r.DecodePayload(&ep); err != nil {
		return ""
	}
	return ep.Message
}

// Notification represents a monitor update pushed by a server.
//
// CBOR encoding:
//
//	{
//	  0: kind,             // 3 = notification
//	  1: subscriptionId,   // uint32
//	  2: name,             // PV name
//	  3: value,            // null = no data
//	  4: timestamp,
//	  5: severity
//	}
type Notification struct {
	Kind           MessageType `cbor:"0,keyasint"`
	SubscriptionID uint32      `cbor:"1,keyasint"`
	Name           string      `cbor:"2,keyasint"`
	Value          any         `cbor:"3,keyasint"`
	Timestamp      time.Time   `cbor:"4,keyasint"`
	Severity       Severity    `cbor:"5,keyasint,omitempty"`
}

// ValuePayload carries a PV value with its timestamp and severity.
// It is the Get response payload and the priming value of a Monitor.
type ValuePayload struct {
	Value     any       `cbor:"1,keyasint"`
	Timestamp time.Time `cbor:"2,keyasint"`
	Severity  Severity  `cbor:"3,keyasint,omitempty"`
}

// PutPayload represents the payload for a Put request.
//
// When Wait is false the server does not answer the request (fire and
// forget). When Wait is true the server answers once the value is stored.
type PutPayload struct {
	Value any  `cbor:"1,keyasint"`
	Wait  bool `cbor:"2,keyasint,omitempty"`
}

// MonitorResponsePayload represents the payload for a Monitor response.
type MonitorResponsePayload struct {
	SubscriptionID uint32       `cbor:"1,keyasint"`
	Current        ValuePayload `cbor:"2,keyasint"`
}

// CancelPayload cancels a subscription. It is sent as a Monitor request
// without a PV name.
type CancelPayload struct {
	SubscriptionID uint32 `cbor:"1,keyasint"`
}

// InfoPayload describes a PV.
type InfoPayload struct {
	Kind        string   `cbor:"1,keyasint"`
	ReadOnly    bool     `cbor:"2,keyasint,omitempty"`
	Low         *float64 `cbor:"3,keyasint,omitempty"`
	High        *float64 `cbor:"4,keyasint,omitempty"`
	Count       int      `cbor:"5,keyasint,omitempty"`
	Description string   `cbor:"6,keyasint,omitempty"`
}

// SearchResponsePayload answers a Search request.
//
// A PV server that hosts the PV answers with Hosted set and no address.
// A name server answers with the address of the hosting server.
type SearchResponsePayload struct {
	Address string `cbor:"1,keyasint,omitempty"`
	Hosted  bool   `cbor:"2,keyasint,omitempty"`
}

// RegisterPayload announces the PVs hosted at Address.
type RegisterPayload struct {
	Address    string   `cbor:"1,keyasint"`
	Names      []string `cbor:"2,keyasint"`
	TTLSeconds uint32   `cbor:"3,keyasint,omitempty"`
}

// RegisterResponsePayload reports how many names a name server accepted.
type RegisterResponsePayload struct {
	Accepted int `cbor:"1,keyasint"`
}

// ErrorPayload represents additional error information in a response.
type ErrorPayload struct {
	Message string `cbor:"1,keyasint,omitempty"`
}

// ControlMessage represents a transport-level control message.
// These are separate from the request/response/notification model.
type ControlMessage struct {
	Kind     MessageType        `cbor:"0,keyasint"`
	Type     ControlMessageType `cbor:"1,keyasint"`
	Sequence uint32             `cbor:"2,keyasint,omitempty"`
}

// ControlMessageType represents the type of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check connection liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose initiates graceful connection close.
	ControlClose ControlMessageType = 3
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}

// normalizer is implemented by payloads carrying untyped PV values.
type normalizer interface {
	normalize()
}

func (p *ValuePayload) normalize()           { p.Value = NormalizeValue(p.Value) }
func (p *PutPayload) normalize()             { p.Value = NormalizeValue(p.Value) }
func (p *MonitorResponsePayload) normalize() { p.Current.normalize() }

func decodeRaw(raw cbor.RawMessage, v any) error {
	if len(raw) == 0 {
		return ErrNoPayload
	}
	if err := Unmarshal(raw, v); err != nil {
		return err
	}
	if n, ok := v.(normalizer); ok {
		n.normalize()
	}
	return nil
}
