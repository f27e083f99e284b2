package protocol

import (
	"encoding/json"
	"time"
)

// ConnectedPayload is sent once after the channel is registered.
type ConnectedPayload struct {
	UserID    int64  `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

type FriendRequestPayload struct {
	ReceiverID int64 `json:"receiver_id"`
}

type RequestDecisionPayload struct {
	RequestID int64 `json:"request_id"`
}

type RemoveFriendPayload struct {
	FriendID int64 `json:"friend_id"`
}

// NoticePayload carries a human-readable social notice.
type NoticePayload struct {
	Message   string `json:"message"`
	UserID    int64  `json:"user_id,omitempty"`
	RequestID int64  `json:"request_id,omitempty"`
}

// Invalidation scopes.
const (
	ScopeFriends       = "friends"
	ScopeRequests      = "requests"
	ScopeConversations = "conversations"
	ScopeMessages      = "messages"
	ScopeCalls         = "calls"
)

// InvalidatePayload names the cached view a client must re-fetch.
type InvalidatePayload struct {
	Scope          string `json:"scope"`
	ConversationID int64  `json:"conversation_id,omitempty"`
}

// Invalidate builds an EventInvalidate frame.
func Invalidate(scope string, conversationID int64) Frame {
	return MustFrame(EventInvalidate, InvalidatePayload{Scope: scope, ConversationID: conversationID})
}

// SendMessagePayload is the payload of text_message and file_message.
type SendMessagePayload struct {
	ConversationID int64  `json:"conversation_id"`
	ReceiverID     int64  `json:"receiver_id,omitempty"`
	Content        string `json:"content,omitempty"`
	FilePath       string `json:"file_path,omitempty"`
	FileType       string `json:"file_type,omitempty"`
}

type GetMessagesPayload struct {
	ConversationID int64 `json:"conversation_id"`
	Limit          int   `json:"limit,omitempty"`
}

// MessageView is a decrypted message as clients see it.
type MessageView struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Content        string    `json:"content"`
	FilePath       *string   `json:"file_path,omitempty"`
	FileType       *string   `json:"file_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type DispatchMessagesPayload struct {
	ConversationID int64         `json:"conversation_id"`
	Messages       []MessageView `json:"messages"`
}

// StartCallPayload opens a call. CallID is optional; the server generates one
// when it is empty.
type StartCallPayload struct {
	CallID         string          `json:"call_id,omitempty"`
	ReceiverID     int64           `json:"receiver_id"`
	ConversationID int64           `json:"conversation_id"`
	Offer          json.RawMessage `json:"offer"`
}

type IncomingCallPayload struct {
	CallID         string          `json:"call_id"`
	CallerID       int64           `json:"caller_id"`
	ConversationID int64           `json:"conversation_id"`
	Offer          json.RawMessage `json:"offer"`
}

type DialingPayload struct {
	CallID     string `json:"call_id"`
	ReceiverID int64  `json:"receiver_id"`
}

type AcceptCallPayload struct {
	CallID string          `json:"call_id"`
	Answer json.RawMessage `json:"answer"`
}

type CallAcceptedPayload struct {
	CallID string          `json:"call_id"`
	Answer json.RawMessage `json:"answer"`
}

// CallRefPayload identifies a call in decline/end/busy requests and in
// terminal notifications. Verdict is only set by the server.
type CallRefPayload struct {
	CallID  string `json:"call_id"`
	Verdict string `json:"verdict,omitempty"`
}

// ICECandidatePayload relays a candidate. Clients fill ToUserID; the server
// replaces it with FromUserID when forwarding.
type ICECandidatePayload struct {
	CallID     string          `json:"call_id"`
	ToUserID   int64           `json:"to_user_id,omitempty"`
	FromUserID int64           `json:"from_user_id,omitempty"`
	Candidate  json.RawMessage `json:"candidate"`
}
