package domain

// Payload is an opaque structured message. It is delivered verbatim.
type Payload map[string]any

// Event kinds produced by the service itself.
const (
	KindNewMessage       = "new_message"
	KindCallNotification = "call_notification"
	KindUserLeft         = "user_left"
	KindError            = "error"
)

// SignalEnvelope wraps caller-supplied signaling data with the sender and the
// sub-type so the receiving side can tell offers, answers and candidates apart.
func SignalEnvelope(from UserID, kind string, data any) Payload {
	return Payload{
		"from": from,
		"type": kind,
		"data": data,
	}
}

func NewMessage(message any) Payload {
	return Payload{"type": KindNewMessage, "message": message}
}

func CallNotification(call CallID, conv ConversationID, initiatedBy any, callType string) Payload {
	return Payload{
		"type":            KindCallNotification,
		"call_id":         call,
		"conversation_id": conv,
		"initiated_by":    initiatedBy,
		"call_type":       callType,
	}
}

func UserLeft(uid UserID) Payload {
	return Payload{"type": KindUserLeft, "user_id": uid}
}

func ErrorEvent(reason string) Payload {
	return Payload{"type": KindError, "error": reason}
}
