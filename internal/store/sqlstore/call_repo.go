package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"zchat-signal/internal/domain"
)

const callColumns = `id, caller_id, callee_id, conversation_id, kind, status, verdict, started_at, ended_at`

// CallRepo is the call log.
type CallRepo struct {
	db *sqlx.DB
}

func NewCallRepo(db *sqlx.DB) *CallRepo {
	return &CallRepo{db: db}
}

var _ domain.CallRepository = (*CallRepo)(nil)

func (r *CallRepo) Create(ctx context.Context, c *domain.CallRecord) error {
	if c.StartedAt.IsZero() {
		c.StartedAt = now()
	}
	if c.Status == "" {
		c.Status = domain.CallOngoing
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO calls (id, caller_id, callee_id, conversation_id, kind, status, verdict, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), c.ID, c.CallerID, c.CalleeID, c.ConversationID, c.Kind, c.Status, c.Verdict, c.StartedAt.UTC(), c.EndedAt)
	if err != nil {
		return wrap("insert call", err)
	}
	return nil
}

// Finish sets the verdict and end time of an ongoing call. A call that has
// already ended is left untouched and reported as ErrConflict.
func (r *CallRepo) Finish(ctx context.Context, id string, verdict domain.CallVerdict, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE calls SET status = ?, verdict = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`), domain.CallEnded, verdict, endedAt.UTC(), id, domain.CallOngoing)
	if err != nil {
		return wrap("finish call", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM calls WHERE id = ?)`), id); err != nil {
			return wrap("finish call", err)
		}
		if exists {
			return fmt.Errorf("finish call %s: %w", id, domain.ErrConflict)
		}
		return fmt.Errorf("finish call %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListForUser returns the user's calls, newest first.
func (r *CallRepo) ListForUser(ctx context.Context, userID int64, limit int) ([]*domain.CallRecord, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE caller_id = ? OR callee_id = ? ORDER BY started_at DESC, id`
	args := []any{userID, userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var calls []*domain.CallRecord
	if err := r.db.SelectContext(ctx, &calls, r.db.Rebind(query), args...); err != nil {
		return nil, wrap("list calls", err)
	}
	return calls, nil
}
