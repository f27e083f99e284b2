package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"zchat-signal/internal/domain"
)

const conversationColumns = `c.id, c.name, c.is_group, c.created_at, c.updated_at`

type ConversationRepo struct {
	db *sqlx.DB
}

func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := r.db.GetContext(ctx, &c, r.db.Rebind(`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`), id); err != nil {
		return nil, wrap("get conversation", err)
	}
	return &c, nil
}

// ListForUser returns the user's conversations, most recently active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	var res []*domain.Conversation
	err := r.db.SelectContext(ctx, &res, r.db.Rebind(`
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ?
		ORDER BY c.updated_at DESC, c.id DESC
	`), userID)
	if err != nil {
		return nil, wrap("list conversations", err)
	}
	return res, nil
}

// FindDirect returns the one-to-one conversation between a and b.
func (r *ConversationRepo) FindDirect(ctx context.Context, a, b int64) (*domain.Conversation, error) {
	c, err := findDirect(ctx, r.db, a, b)
	if err != nil {
		return nil, wrap("find direct conversation", err)
	}
	return c, nil
}

func (r *ConversationRepo) ParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY user_id
	`), conversationID)
	if err != nil {
		return nil, wrap("list participants", err)
	}
	return ids, nil
}

func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, r.db.Rebind(`
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = ? AND user_id = ?
		)
	`), conversationID, userID)
	if err != nil {
		return false, wrap("check participant", err)
	}
	return exists, nil
}

func findDirect(ctx context.Context, q sqlx.ExtContext, a, b int64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := sqlx.GetContext(ctx, q, &c, q.Rebind(`
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_participants pa ON pa.conversation_id = c.id AND pa.user_id = ?
		JOIN conversation_participants pb ON pb.conversation_id = c.id AND pb.user_id = ?
		WHERE c.is_group = ?
		ORDER BY c.id
		LIMIT 1
	`), a, b, false)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func createDirect(ctx context.Context, q sqlx.ExtContext, a, b int64) (*domain.Conversation, error) {
	ts := now()
	c := &domain.Conversation{CreatedAt: ts, UpdatedAt: ts}
	err := q.QueryRowxContext(ctx, q.Rebind(`
		INSERT INTO conversations (name, is_group, created_at, updated_at)
		VALUES (NULL, ?, ?, ?)
		RETURNING id
	`), false, ts, ts).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	for _, uid := range []int64{a, b} {
		if _, err := q.ExecContext(ctx, q.Rebind(`
			INSERT INTO conversation_participants (user_id, conversation_id, joined_at)
			VALUES (?, ?, ?)
			ON CONFLICT (user_id, conversation_id) DO NOTHING
		`), uid, c.ID, ts); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}
	return c, nil
}
