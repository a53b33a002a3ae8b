package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrWrongKind is returned when a message decodes but carries another kind.
var ErrWrongKind = errors.New("unexpected message kind")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Canonical key order and sub-second timestamps; non-finite floats are
	// sent as is because scalar ranges may be infinite.
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnixDynamic,
		InfConvert:    cbor.InfConvertNone,
		NaNConvert:    cbor.NaNConvertNone,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: CBOR encoder mode: %v", err))
	}

	// Unknown keys are ignored so newer peers can add fields.
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		IntDec:            cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: CBOR decoder mode: %v", err))
	}
}

// Marshal encodes v with the wire encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes wire-encoded data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// kinded is implemented by every top-level message.
type kinded interface {
	*Request | *Response | *Notification | *ControlMessage
	kind() MessageType
}

func (r *Request) kind() MessageType        { return r.Kind }
func (r *Response) kind() MessageType       { return r.Kind }
func (n *Notification) kind() MessageType   { return n.Kind }
func (m *ControlMessage) kind() MessageType { return m.Kind }

// decode unmarshals data into msg and checks its kind.
func decode[M kinded](data []byte, msg M, want MessageType) error {
	if err := Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decode %s: %w", want, err)
	}
	if got := msg.kind(); got != want {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongKind, got, want)
	}
	return nil
}

// EncodeRequest validates and encodes a request.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	req.Kind = MessageTypeRequest
	return Marshal(req)
}

// DecodeRequest decodes and validates a request.
func DecodeRequest(data []byte) (*Request, error) {
	req := new(Request)
	if err := decode(data, req, MessageTypeRequest); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// EncodeResponse encodes a response.
func EncodeResponse(resp *Response) ([]byte, error) {
	resp.Kind = MessageTypeResponse
	return Marshal(resp)
}

// DecodeResponse decodes a response.
func DecodeResponse(data []byte) (*Response, error) {
	resp := new(Response)
	if err := decode(data, resp, MessageTypeResponse); err != nil {
		return nil, err
	}
	return resp, nil
}

// EncodeNotification encodes a monitor update. The value is normalized so
// every peer sees the same shapes.
func EncodeNotification(notif *Notification) ([]byte, error) {
	notif.Kind = MessageTypeNotification
	notif.Value = NormalizeValue(notif.Value)
	return Marshal(notif)
}

// DecodeNotification decodes a monitor update.
func DecodeNotification(data []byte) (*Notification, error) {
	notif := new(Notification)
	if err := decode(data, notif, MessageTypeNotification); err != nil {
		return nil, err
	}
	notif.Value = NormalizeValue(notif.Value)
	return notif, nil
}

// EncodeControlMessage encodes a ping, pong or close.
func EncodeControlMessage(msg *ControlMessage) ([]byte, error) {
	msg.Kind = MessageTypeControl
	return Marshal(msg)
}

// DecodeControlMessage decodes a ping, pong or close.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	msg := new(ControlMessage)
	if err := decode(data, msg, MessageTypeControl); err != nil {
		return nil, err
	}
	return msg, nil
}

// MessageType is the kind of a message, carried under key 0.
type MessageType uint8

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeRequest
	MessageTypeResponse
	MessageTypeNotification
	MessageTypeControl
)

var messageTypeNames = [...]string{"unknown", "request", "response", "notification", "control"}

func (t MessageType) String() string {
	if int(t) < len(messageTypeNames) {
		return messageTypeNames[t]
	}
	return "unknown"
}

// PeekMessageType reads the kind of a message without decoding the rest.
// Kinds newer than this package knows are reported as MessageTypeUnknown.
func PeekMessageType(data []byte) (MessageType, error) {
	var peek struct {
		Kind MessageType `cbor:"0,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return MessageTypeUnknown, fmt.Errorf("peek message kind: %w", err)
	}
	if peek.Kind > MessageTypeControl {
		return MessageTypeUnknown, nil
	}
	return peek.Kind, nil
}
