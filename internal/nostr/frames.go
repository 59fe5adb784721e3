package nostr

import (
	"encoding/json"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"nostr-threads/internal/types"
)

// wire is the JSON codec for protocol frames.
var wire = jsoniter.Config{
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

var (
	ErrEmptyFrame      = errors.New("empty frame")
	ErrUnknownFrame    = errors.New("unknown frame type")
	ErrMalformedFrame  = errors.New("malformed frame")
	errMissingSubID    = errors.New("missing subscription id")
	errMissingEventObj = errors.New("missing event object")
)

// Marshal encodes v with the wire codec.
func Marshal(v interface{}) ([]byte, error) {
	return wire.Marshal(v)
}

// Unmarshal decodes data with the wire codec.
func Unmarshal(data []byte, v interface{}) error {
	return wire.Unmarshal(data, v)
}

// EncodeReq builds [TYPE, subscriptionId, filter...].
func EncodeReq(msgType types.MessageType, subID string, filters []types.Filter) ([]byte, error) {
	frame := make([]interface{}, 0, len(filters)+2)
	frame = append(frame, msgType.String(), subID)
	for i := range filters {
		frame = append(frame, &filters[i])
	}
	return wire.Marshal(frame)
}

// EncodeEvent builds ["EVENT", event].
func EncodeEvent(evt *types.Event) ([]byte, error) {
	return wire.Marshal([]interface{}{"EVENT", evt})
}

// EncodeClose builds ["CLOSE", subscriptionId].
func EncodeClose(subID string) ([]byte, error) {
	return wire.Marshal([]interface{}{"CLOSE", subID})
}

// ParseMessage decodes one inbound frame by its discriminator.
func ParseMessage(data []byte) (*types.ProtocolMessage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var parts []json.RawMessage
	if err := wire.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(parts) < 2 {
		return nil, ErrMalformedFrame
	}

	var label string
	if err := wire.Unmarshal(parts[0], &label); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	msgType, ok := types.ParseMessageType(label)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, label)
	}

	msg := &types.ProtocolMessage{Type: msgType}
	switch msgType {
	case types.MessageEvent:
		// Inbound: ["EVENT", subId, event]; outbound echo: ["EVENT", event]
		raw := parts[1]
		if len(parts) >= 3 {
			if err := readString(parts[1], &msg.SubscriptionID); err != nil {
				return nil, err
			}
			raw = parts[2]
		}
		evt, err := parseEvent(raw)
		if err != nil {
			return nil, err
		}
		msg.Event = evt

	case types.MessageNotice:
		if err := readString(parts[1], &msg.Notice); err != nil {
			return nil, err
		}

	case types.MessageClose, types.MessageEose:
		if err := readString(parts[1], &msg.SubscriptionID); err != nil {
			return nil, err
		}
		if msg.SubscriptionID == "" {
			return nil, errMissingSubID
		}
		if len(parts) >= 3 {
			_ = readString(parts[2], &msg.Notice)
		}

	case types.MessageOk:
		if len(parts) < 3 {
			return nil, ErrMalformedFrame
		}
		if err := readString(parts[1], &msg.EventID); err != nil {
			return nil, err
		}
		if err := wire.Unmarshal(parts[2], &msg.Success); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if len(parts) >= 4 {
			_ = readString(parts[3], &msg.Notice)
		}

	case types.MessageCount:
		if len(parts) < 3 {
			return nil, ErrMalformedFrame
		}
		if err := readString(parts[1], &msg.SubscriptionID); err != nil {
			return nil, err
		}
		var body struct {
			Count int64 `json:"count"`
		}
		if err := wire.Unmarshal(parts[2], &body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		msg.Count = body.Count

	case types.MessageReq:
		if err := readString(parts[1], &msg.SubscriptionID); err != nil {
			return nil, err
		}
		for _, raw := range parts[2:] {
			var f types.Filter
			if err := wire.Unmarshal(raw, &f); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
			}
			msg.Filters = append(msg.Filters, f)
		}
	}

	return msg, nil
}

func readString(raw json.RawMessage, dst *string) error {
	if err := wire.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

func parseEvent(raw json.RawMessage) (*types.Event, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errMissingEventObj
	}
	var evt types.Event
	if err := wire.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return &evt, nil
}
