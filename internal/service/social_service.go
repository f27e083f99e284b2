package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zchat-signal/internal/domain"
	"zchat-signal/internal/events"
	"zchat-signal/internal/metrics"
	"zchat-signal/internal/protocol"
)

// Notifier delivers a frame to the user's live channel. It reports false when
// the user is unreachable; delivery is best-effort.
type Notifier interface {
	Notify(userID int64, f protocol.Frame) bool
}

// SocialService validates and applies friend-graph mutations, then notifies
// the affected parties. Notifications are only sent after the mutation has
// been committed.
type SocialService struct {
	users     domain.UserRepository
	friends   domain.FriendRepository
	notifier  Notifier
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewSocialService(
	users domain.UserRepository,
	friends domain.FriendRepository,
	notifier Notifier,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SocialService {
	return &SocialService{
		users:     users,
		friends:   friends,
		notifier:  notifier,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With("component", "social"),
	}
}

// SendFriendRequest creates a pending request from senderID to receiverID.
func (s *SocialService) SendFriendRequest(ctx context.Context, senderID, receiverID int64) (req *domain.FriendRequest, err error) {
	defer func() { s.metrics.SocialOp("send", err) }()

	if senderID == receiverID {
		return nil, fmt.Errorf("cannot befriend yourself: %w", domain.ErrInvalidInput)
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		return nil, err
	}

	friends, err := s.friends.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, fmt.Errorf("already friends: %w", domain.ErrConflict)
	}
	pending, err := s.friends.HasPendingRequest(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, fmt.Errorf("request already pending: %w", domain.ErrConflict)
	}

	req, err = s.friends.CreateRequest(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	s.notify(receiverID, protocol.EventNewFriendRequest, protocol.NoticePayload{
		Message:   fmt.Sprintf("%s sent you a friend request", sender.Username),
		UserID:    senderID,
		RequestID: req.ID,
	})
	s.notify(senderID, protocol.EventFriendRequestSent, protocol.NoticePayload{
		Message:   "Friend request sent",
		UserID:    receiverID,
		RequestID: req.ID,
	})
	s.invalidate(protocol.ScopeRequests, senderID, receiverID)

	events.Emit(ctx, s.publisher, s.logger, events.FriendRequestCreated, events.FriendRequestEvent{
		RequestID:  req.ID,
		SenderID:   senderID,
		ReceiverID: receiverID,
	})
	return req, nil
}

// UnsendRequest withdraws a pending request. Only the sender is told; the
// receiver never learns about the churn.
func (s *SocialService) UnsendRequest(ctx context.Context, senderID, receiverID int64) (err error) {
	defer func() { s.metrics.SocialOp("unsend", err) }()

	req, err := s.friends.FindRequest(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if err := s.friends.DeleteRequest(ctx, req.ID); err != nil {
		return err
	}

	s.notify(senderID, protocol.EventRequestUnsent, protocol.NoticePayload{
		Message:   "Friend request withdrawn",
		UserID:    receiverID,
		RequestID: req.ID,
	})
	s.invalidate(protocol.ScopeRequests, senderID)
	return nil
}

// AcceptRequest makes the receiver and sender friends and ensures they share
// a direct conversation.
func (s *SocialService) AcceptRequest(ctx context.Context, receiverID, requestID int64) (conv *domain.Conversation, err error) {
	defer func() { s.metrics.SocialOp("accept", err) }()

	req, conv, err := s.friends.AcceptRequest(ctx, requestID, receiverID)
	if err != nil {
		return nil, err
	}

	name := s.username(ctx, receiverID)
	s.notify(req.SenderID, protocol.EventRequestAccepted, protocol.NoticePayload{
		Message:   fmt.Sprintf("%s accepted your friend request", name),
		UserID:    receiverID,
		RequestID: req.ID,
	})
	s.notify(receiverID, protocol.EventRequestAccepted, protocol.NoticePayload{
		Message:   "Friend request accepted",
		UserID:    req.SenderID,
		RequestID: req.ID,
	})
	for _, scope := range []string{protocol.ScopeFriends, protocol.ScopeRequests, protocol.ScopeConversations} {
		s.invalidate(scope, req.SenderID, receiverID)
	}

	events.Emit(ctx, s.publisher, s.logger, events.FriendshipCreated, events.FriendshipEvent{
		UserID:         req.SenderID,
		FriendID:       receiverID,
		ConversationID: conv.ID,
	})
	return conv, nil
}

// RejectRequest drops a pending request addressed to receiverID and tells the
// original sender.
func (s *SocialService) RejectRequest(ctx context.Context, receiverID, requestID int64) (err error) {
	defer func() { s.metrics.SocialOp("reject", err) }()

	req, err := s.friends.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.ReceiverID != receiverID {
		return fmt.Errorf("request %d is not addressed to user %d: %w", requestID, receiverID, domain.ErrForbidden)
	}
	if err := s.friends.DeleteRequest(ctx, req.ID); err != nil {
		return err
	}

	s.notify(req.SenderID, protocol.EventRequestRejected, protocol.NoticePayload{
		Message:   fmt.Sprintf("%s declined your friend request", s.username(ctx, receiverID)),
		UserID:    receiverID,
		RequestID: req.ID,
	})
	s.invalidate(protocol.ScopeRequests, req.SenderID)
	return nil
}

// Unfriend removes the friendship between userID and friendID in both directions.
func (s *SocialService) Unfriend(ctx context.Context, userID, friendID int64) (err error) {
	defer func() { s.metrics.SocialOp("unfriend", err) }()

	ok, err := s.friends.AreFriends(ctx, userID, friendID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("users %d and %d are not friends: %w", userID, friendID, domain.ErrNotFound)
	}
	if err := s.friends.DeleteFriendship(ctx, userID, friendID); err != nil {
		return err
	}

	s.notify(friendID, protocol.EventFriendRemoved, protocol.NoticePayload{
		Message: fmt.Sprintf("%s removed you from their friends", s.username(ctx, userID)),
		UserID:  userID,
	})
	s.invalidate(protocol.ScopeFriends, userID, friendID)
	s.invalidate(protocol.ScopeConversations, userID, friendID)

	events.Emit(ctx, s.publisher, s.logger, events.FriendshipRemoved, events.FriendshipEvent{
		UserID:   userID,
		FriendID: friendID,
	})
	return nil
}

// SetPresence records the user's online state and tells every reachable
// friend to re-fetch its friend list.
func (s *SocialService) SetPresence(ctx context.Context, userID int64, online bool) error {
	if err := s.users.SetOnlineStatus(ctx, userID, online); err != nil {
		return err
	}
	friends, err := s.friends.ListFriends(ctx, userID)
	if err != nil {
		return err
	}
	s.invalidate(protocol.ScopeFriends, friends...)
	return nil
}

// Friends returns the user's friends for the re-fetch endpoint.
func (s *SocialService) Friends(ctx context.Context, userID int64) ([]*domain.User, error) {
	ids, err := s.friends.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}
	return s.users.ListByIDs(ctx, ids)
}

// Requests returns the pending requests the user sent or received.
func (s *SocialService) Requests(ctx context.Context, userID int64) ([]*domain.FriendRequest, error) {
	reqs, err := s.friends.ListRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []*domain.FriendRequest{}
	}
	return reqs, nil
}

func (s *SocialService) username(ctx context.Context, userID int64) string {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to resolve username", "user_id", userID, "error", err)
		}
		return "Someone"
	}
	return u.Username
}

func (s *SocialService) notify(userID int64, eventType string, payload any) {
	f, err := protocol.NewFrame(eventType, payload)
	if err != nil {
		s.logger.Error("failed to build notification", "event", eventType, "error", err)
		return
	}
	if !s.notifier.Notify(userID, f) {
		s.metrics.NotificationDropped(eventType)
		s.logger.Debug("recipient unreachable, notification dropped", "event", eventType, "user_id", userID)
	}
}

func (s *SocialService) invalidate(scope string, userIDs ...int64) {
	f := protocol.Invalidate(scope, 0)
	for _, id := range userIDs {
		if !s.notifier.Notify(id, f) {
			s.metrics.NotificationDropped(protocol.EventInvalidate)
		}
	}
}
