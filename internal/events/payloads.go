package events

type FriendRequestEvent struct {
	RequestID  int64 `json:"request_id"`
	SenderID   int64 `json:"sender_id"`
	ReceiverID int64 `json:"receiver_id"`
}

type FriendshipEvent struct {
	UserID         int64 `json:"user_id"`
	FriendID       int64 `json:"friend_id"`
	ConversationID int64 `json:"conversation_id,omitempty"`
}

// MessageEvent never carries content; consumers re-read the log.
type MessageEvent struct {
	MessageID      int64 `json:"message_id"`
	ConversationID int64 `json:"conversation_id"`
	SenderID       int64 `json:"sender_id"`
}

type CallEndedEvent struct {
	CallID          string  `json:"call_id"`
	CallerID        int64   `json:"caller_id"`
	CalleeID        int64   `json:"callee_id"`
	Kind            string  `json:"kind"`
	Verdict         string  `json:"verdict"`
	DurationSeconds float64 `json:"duration_seconds"`
}
