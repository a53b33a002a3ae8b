package log

import (
	"time"

	"github.com/slaclab/acclive/pkg/wire"
)

// DescribeFrame decodes a wire frame into an event skeleton with either
// Message or ControlMsg populated. The caller fills in the connection,
// direction and role. Frames that do not decode yield an Error event.
func DescribeFrame(data []byte) Event {
	ev := Event{Timestamp: time.Now(), Layer: LayerWire}

	kind, err := wire.PeekMessageType(data)
	if err != nil {
		ev.Category = CategoryError
		ev.Error = &ErrorEventData{Layer: LayerWire, Message: err.Error(), Context: "decode frame"}
		return ev
	}

	switch kind {
	case wire.MessageTypeRequest:
		req, err := wire.DecodeRequest(data)
		if err != nil {
			break
		}
		op := req.Operation
		msg := &MessageEvent{Type: kind, MessageID: req.MessageID, Operation: &op}
		if op == wire.OpPut {
			var put wire.PutPayload
			if req.DecodePayload(&put) == nil {
				msg.Value = wire.NormalizeValue(put.Value)
			}
		}
		ev.Category = CategoryMessage
		ev.PVName = req.Name
		ev.Message = msg
		return ev

	case wire.MessageTypeResponse:
		resp, err := wire.DecodeResponse(data)
		if err != nil {
			break
		}
		status := resp.Status
		ev.Category = CategoryMessage
		ev.Message = &MessageEvent{Type: kind, MessageID: resp.MessageID, Status: &status}
		return ev

	case wire.MessageTypeNotification:
		notif, err := wire.DecodeNotification(data)
		if err != nil {
			break
		}
		sub := notif.SubscriptionID
		ev.Category = CategoryMessage
		ev.PVName = notif.Name
		ev.Message = &MessageEvent{Type: kind, SubscriptionID: &sub, Value: notif.Value}
		return ev

	case wire.MessageTypeControl:
		ctrl, err := wire.DecodeControlMessage(data)
		if err != nil {
			break
		}
		ev.Category = CategoryControl
		ev.ControlMsg = &ControlMsgEvent{Type: ctrl.Type, Sequence: ctrl.Sequence}
		return ev
	}

	ev.Category = CategoryError
	ev.Error = &ErrorEventData{Layer: LayerWire, Message: "undecodable " + kind.String() + " frame"}
	return ev
}
