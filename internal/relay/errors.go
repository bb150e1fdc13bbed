package relay

// Wire error codes reported through message_error frames. Validation and
// persistence failures are keyed by the client's tempId so exactly one
// pending send resolves to a failed state; the connection always survives.
const (
	CodeForbiddenSelfMessage = "forbidden_self_message"
	CodeEmptyMessage         = "empty_message"
	CodeReceiverNotFound     = "receiver_not_found"
	CodeMessagePersistFailed = "message_persist_failed"
)

// SendError is a per-request failure of HandleSend, carrying the wire code
// already reported to the sender.
type SendError struct {
	Code   string
	TempID string
}

func (e *SendError) Error() string {
	return "relay: send failed: " + e.Code
}
