package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"zchat-signal/internal/domain"
	"zchat-signal/internal/events"
	"zchat-signal/internal/metrics"
	"zchat-signal/internal/protocol"
	"zchat-signal/internal/security"
)

const (
	maxContentRunes     = 5000
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10 * defaultHistoryLimit
)

// MessageService appends to conversation logs and tells participants to
// re-fetch. Message bodies are never pushed over the channel on send.
type MessageService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	encryptor     *security.Encryptor
	notifier      Notifier
	publisher     events.Publisher
	metrics       *metrics.Metrics
	logger        *slog.Logger

	MaxMessagesPerConversation int
}

func NewMessageService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	encryptor *security.Encryptor,
	notifier Notifier,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	maxMessages int,
) *MessageService {
	return &MessageService{
		conversations:              conversations,
		messages:                   messages,
		encryptor:                  encryptor,
		notifier:                   notifier,
		publisher:                  publisher,
		metrics:                    m,
		logger:                     logger.With("component", "messages"),
		MaxMessagesPerConversation: maxMessages,
	}
}

// SendMessageInput addresses a conversation directly, or a friend through
// ReceiverID when ConversationID is zero.
type SendMessageInput struct {
	ConversationID int64
	ReceiverID     int64
	Content        string
	FilePath       *string
	FileType       *string
}

func (s *MessageService) SendMessage(ctx context.Context, senderID int64, in SendMessageInput) (*domain.Message, error) {
	if len([]rune(in.Content)) > maxContentRunes {
		return nil, fmt.Errorf("message content exceeds %d characters: %w", maxContentRunes, domain.ErrInvalidInput)
	}
	isFile := in.FilePath != nil && *in.FilePath != ""
	if strings.TrimSpace(in.Content) == "" && !isFile {
		return nil, fmt.Errorf("message content cannot be empty: %w", domain.ErrInvalidInput)
	}

	convID, err := s.resolveConversation(ctx, senderID, in)
	if err != nil {
		return nil, err
	}

	encrypted, err := s.encryptor.Encrypt(in.Content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}
	msg := &domain.Message{
		Content:        encrypted,
		ConversationID: convID,
		SenderID:       senderID,
		FilePath:       in.FilePath,
		FileType:       in.FileType,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}

	kind := "text"
	if isFile {
		kind = "file"
	}
	s.metrics.MessageAppended(kind)

	if s.MaxMessagesPerConversation > 0 {
		if err := s.messages.PruneOld(ctx, convID, s.MaxMessagesPerConversation); err != nil {
			s.logger.Warn("failed to prune conversation", "conversation_id", convID, "error", err)
		}
	}

	participants, err := s.conversations.ParticipantIDs(ctx, convID)
	if err != nil {
		// The message is durable; clients catch up on their next re-fetch.
		s.logger.Warn("failed to resolve participants", "conversation_id", convID, "error", err)
		participants = []int64{senderID}
	}
	f := protocol.Invalidate(protocol.ScopeMessages, convID)
	for _, id := range participants {
		if !s.notifier.Notify(id, f) {
			s.metrics.NotificationDropped(protocol.EventInvalidate)
		}
	}

	events.Emit(ctx, s.publisher, s.logger, events.MessageCreated, events.MessageEvent{
		MessageID:      msg.ID,
		ConversationID: convID,
		SenderID:       senderID,
	})
	return msg, nil
}

func (s *MessageService) resolveConversation(ctx context.Context, senderID int64, in SendMessageInput) (int64, error) {
	if in.ConversationID == 0 {
		if in.ReceiverID == 0 {
			return 0, fmt.Errorf("conversation_id or receiver_id is required: %w", domain.ErrInvalidInput)
		}
		conv, err := s.conversations.FindDirect(ctx, senderID, in.ReceiverID)
		if err != nil {
			return 0, err
		}
		return conv.ID, nil
	}
	if err := s.requireParticipant(ctx, in.ConversationID, senderID); err != nil {
		return 0, err
	}
	return in.ConversationID, nil
}

// ListMessages returns the authoritative, decrypted tail of a conversation in
// chronological order.
func (s *MessageService) ListMessages(ctx context.Context, userID, conversationID int64, limit int) ([]protocol.MessageView, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	msgs, err := s.messages.ListForConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]protocol.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, s.view(m))
	}
	return views, nil
}

// ConversationView is a conversation together with its members.
type ConversationView struct {
	*domain.Conversation
	ParticipantIDs []int64 `json:"participant_ids"`
}

// Conversations lists the user's conversations, most recently active first.
func (s *MessageService) Conversations(ctx context.Context, userID int64) ([]ConversationView, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		ids, err := s.conversations.ParticipantIDs(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, ConversationView{Conversation: c, ParticipantIDs: ids})
	}
	return res, nil
}

func (s *MessageService) requireParticipant(ctx context.Context, conversationID, userID int64) error {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.conversations.GetByID(ctx, conversationID); errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("user %d is not in conversation %d: %w", userID, conversationID, domain.ErrForbidden)
	}
	return nil
}

func (s *MessageService) view(m *domain.Message) protocol.MessageView {
	content := m.Content
	if dec, err := s.encryptor.Decrypt(m.Content); err == nil {
		content = dec
	} else {
		// Rows written before encryption was enabled are served as stored.
		s.logger.Debug("serving message without decryption", "message_id", m.ID, "error", err)
	}
	return protocol.MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        content,
		FilePath:       m.FilePath,
		FileType:       m.FileType,
		CreatedAt:      m.CreatedAt,
	}
}
