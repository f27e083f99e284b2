package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"zchat-signal/internal/domain"
)

const messageColumns = `id, content, conversation_id, sender_id, created_at, file_path, file_type`

type MessageRepo struct {
	db *sqlx.DB
}

func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

// Append stores m and bumps the conversation's updated_at in one transaction.
func (r *MessageRepo) Append(ctx context.Context, m *domain.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, tx.Rebind(`
			INSERT INTO messages (content, conversation_id, sender_id, created_at, file_path, file_type)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id
		`), m.Content, m.ConversationID, m.SenderID, m.CreatedAt.UTC(), m.FilePath, m.FileType).Scan(&m.ID)
		if err != nil {
			return wrap("insert message", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations SET updated_at = ? WHERE id = ?`), m.CreatedAt.UTC(), m.ConversationID)
		if err != nil {
			return wrap("touch conversation", err)
		}
		return requireRow(res, "touch conversation")
	})
}

// ListForConversation returns up to limit of the most recent messages in
// chronological order. A non-positive limit returns the whole log.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int64, limit int) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? ORDER BY id DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var msgs []*domain.Message
	if err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(query), args...); err != nil {
		return nil, wrap("list messages", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// PruneOld deletes everything but the newest keepLimit messages of a conversation.
func (r *MessageRepo) PruneOld(ctx context.Context, conversationID int64, keepLimit int) error {
	if keepLimit <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM messages
		WHERE conversation_id = ? AND id NOT IN (
			SELECT id FROM messages
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`), conversationID, conversationID, keepLimit)
	if err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	return nil
}
