package domain

import "time"

// User represents an application user.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          *string   `db:"email" json:"email,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IsOnline       bool      `db:"is_online" json:"is_online"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// FriendRequestStatus is the lifecycle state of a friend request.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is a directed request from SenderID to ReceiverID. Only pending
// requests are stored; accept and reject delete the row.
type FriendRequest struct {
	ID         int64               `db:"id" json:"id"`
	SenderID   int64               `db:"sender_id" json:"sender_id"`
	ReceiverID int64               `db:"receiver_id" json:"receiver_id"`
	Status     FriendRequestStatus `db:"status" json:"status"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
}

// Friendship is one direction of the symmetric friend edge.
type Friendship struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	FriendID  int64     `db:"friend_id" json:"friend_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Conversation represents a chat conversation (direct or group).
type Conversation struct {
	ID        int64     `db:"id" json:"id"`
	Name      *string   `db:"name" json:"name,omitempty"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Message represents a single chat message.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	Content        string    `db:"content" json:"content"` // encrypted at rest
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	SenderID       int64     `db:"sender_id" json:"sender_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	FilePath       *string   `db:"file_path" json:"file_path,omitempty"`
	FileType       *string   `db:"file_type" json:"file_type,omitempty"`
}

// CallKind selects the media negotiated for a call.
type CallKind string

const (
	CallVoice CallKind = "audio"
	CallVideo CallKind = "video"
)

// Valid reports whether k is a known call kind.
func (k CallKind) Valid() bool {
	return k == CallVoice || k == CallVideo
}

// CallStatus is the persisted status of a call record.
type CallStatus string

const (
	CallOngoing CallStatus = "ongoing"
	CallEnded   CallStatus = "ended"
)

// CallVerdict classifies a finished call. It is set once, at the terminal transition.
type CallVerdict string

const (
	VerdictAccepted CallVerdict = "accepted"
	VerdictDenied   CallVerdict = "denied"
	VerdictMissed   CallVerdict = "missed"
	VerdictBusy     CallVerdict = "busy"
)

// CallRecord is the durable log entry of a call session.
type CallRecord struct {
	ID             string       `db:"id" json:"id"`
	CallerID       int64        `db:"caller_id" json:"caller_id"`
	CalleeID       int64        `db:"callee_id" json:"callee_id"`
	ConversationID int64        `db:"conversation_id" json:"conversation_id"`
	Kind           CallKind     `db:"kind" json:"kind"`
	Status         CallStatus   `db:"status" json:"status"`
	Verdict        *CallVerdict `db:"verdict" json:"verdict,omitempty"`
	StartedAt      time.Time    `db:"started_at" json:"started_at"`
	EndedAt        *time.Time   `db:"ended_at" json:"ended_at,omitempty"`
}
