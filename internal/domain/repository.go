package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*User, error)
	SetOnlineStatus(ctx context.Context, id int64, isOnline bool) error
}

// FriendRepository defines persistence operations for the social graph.
type FriendRepository interface {
	CreateRequest(ctx context.Context, senderID, receiverID int64) (*FriendRequest, error)
	GetRequest(ctx context.Context, requestID int64) (*FriendRequest, error)
	FindRequest(ctx context.Context, senderID, receiverID int64) (*FriendRequest, error)
	ListRequests(ctx context.Context, userID int64) ([]*FriendRequest, error)
	HasPendingRequest(ctx context.Context, a, b int64) (bool, error)
	DeleteRequest(ctx context.Context, requestID int64) error
	// AcceptRequest creates the symmetric friendship, deletes the request and
	// ensures a direct conversation exists, all in one transaction. Only the
	// receiver may accept; anyone else gets ErrForbidden.
	AcceptRequest(ctx context.Context, requestID, receiverID int64) (*FriendRequest, *Conversation, error)
	AreFriends(ctx context.Context, a, b int64) (bool, error)
	ListFriends(ctx context.Context, userID int64) ([]int64, error)
	DeleteFriendship(ctx context.Context, a, b int64) error
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]*Conversation, error)
	FindDirect(ctx context.Context, a, b int64) (*Conversation, error)
	ParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
}

// MessageRepository defines persistence operations for the append-only message log.
type MessageRepository interface {
	Append(ctx context.Context, m *Message) error
	ListForConversation(ctx context.Context, conversationID int64, limit int) ([]*Message, error)
	PruneOld(ctx context.Context, conversationID int64, keepLimit int) error
}

// CallRepository defines the call-log collaborator.
type CallRepository interface {
	Create(ctx context.Context, c *CallRecord) error
	Finish(ctx context.Context, id string, verdict CallVerdict, endedAt time.Time) error
	ListForUser(ctx context.Context, userID int64, limit int) ([]*CallRecord, error)
}
