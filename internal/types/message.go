package types

// MessageType is the discriminator of a protocol frame.
type MessageType int

const (
	MessageReq MessageType = iota
	MessageEvent
	MessageNotice
	MessageClose
	MessageOk
	MessageEose
	MessageCount
)

var messageTypeNames = map[MessageType]string{
	MessageReq:    "REQ",
	MessageEvent:  "EVENT",
	MessageNotice: "NOTICE",
	MessageClose:  "CLOSE",
	MessageOk:     "OK",
	MessageEose:   "EOSE",
	MessageCount:  "COUNT",
}

func (m MessageType) String() string {
	if s, ok := messageTypeNames[m]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseMessageType maps a wire discriminator to its type. Relays send
// CLOSED for server-side subscription termination; it is folded into
// MessageClose.
func ParseMessageType(s string) (MessageType, bool) {
	switch s {
	case "REQ":
		return MessageReq, true
	case "EVENT":
		return MessageEvent, true
	case "NOTICE":
		return MessageNotice, true
	case "CLOSE", "CLOSED":
		return MessageClose, true
	case "OK":
		return MessageOk, true
	case "EOSE":
		return MessageEose, true
	case "COUNT":
		return MessageCount, true
	}
	return 0, false
}

// ProtocolMessage is one decoded frame. Only the fields relevant to Type
// are set.
type ProtocolMessage struct {
	Type           MessageType
	SubscriptionID string
	Event          *Event
	Filters        []Filter
	Notice         string
	Success        bool
	EventID        string
	Count          int64
}
