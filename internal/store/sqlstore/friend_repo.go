package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"zchat-signal/internal/domain"
)

const requestColumns = `id, sender_id, receiver_id, status, created_at`

type FriendRepo struct {
	db *sqlx.DB
}

func NewFriendRepo(db *sqlx.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

var _ domain.FriendRepository = (*FriendRepo)(nil)

func (r *FriendRepo) CreateRequest(ctx context.Context, senderID, receiverID int64) (*domain.FriendRequest, error) {
	req := &domain.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     domain.FriendRequestPending,
		CreatedAt:  now(),
	}
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO friend_requests (sender_id, receiver_id, status, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), senderID, receiverID, req.Status, req.CreatedAt).Scan(&req.ID)
	if err != nil {
		return nil, wrap("insert friend request", err)
	}
	return req, nil
}

func (r *FriendRepo) GetRequest(ctx context.Context, requestID int64) (*domain.FriendRequest, error) {
	var req domain.FriendRequest
	if err := r.db.GetContext(ctx, &req, r.db.Rebind(`SELECT `+requestColumns+` FROM friend_requests WHERE id = ?`), requestID); err != nil {
		return nil, wrap("get friend request", err)
	}
	return &req, nil
}

// FindRequest returns the pending request sent by senderID to receiverID.
func (r *FriendRepo) FindRequest(ctx context.Context, senderID, receiverID int64) (*domain.FriendRequest, error) {
	var req domain.FriendRequest
	err := r.db.GetContext(ctx, &req, r.db.Rebind(`
		SELECT `+requestColumns+` FROM friend_requests
		WHERE sender_id = ? AND receiver_id = ? AND status = ?
	`), senderID, receiverID, domain.FriendRequestPending)
	if err != nil {
		return nil, wrap("find friend request", err)
	}
	return &req, nil
}

// ListRequests returns the pending requests the user sent or received, newest first.
func (r *FriendRepo) ListRequests(ctx context.Context, userID int64) ([]*domain.FriendRequest, error) {
	var reqs []*domain.FriendRequest
	err := r.db.SelectContext(ctx, &reqs, r.db.Rebind(`
		SELECT `+requestColumns+` FROM friend_requests
		WHERE (sender_id = ? OR receiver_id = ?) AND status = ?
		ORDER BY id DESC
	`), userID, userID, domain.FriendRequestPending)
	if err != nil {
		return nil, wrap("list friend requests", err)
	}
	return reqs, nil
}

// HasPendingRequest reports a pending request between a and b in either direction.
func (r *FriendRepo) HasPendingRequest(ctx context.Context, a, b int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, r.db.Rebind(`
		SELECT EXISTS(
			SELECT 1 FROM friend_requests
			WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
			AND status = ?
		)
	`), a, b, b, a, domain.FriendRequestPending)
	if err != nil {
		return false, wrap("check pending request", err)
	}
	return exists, nil
}

func (r *FriendRepo) DeleteRequest(ctx context.Context, requestID int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM friend_requests WHERE id = ?`), requestID)
	if err != nil {
		return wrap("delete friend request", err)
	}
	return requireRow(res, "delete friend request")
}

func (r *FriendRepo) AcceptRequest(ctx context.Context, requestID, receiverID int64) (*domain.FriendRequest, *domain.Conversation, error) {
	var (
		req  domain.FriendRequest
		conv *domain.Conversation
	)
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &req, tx.Rebind(`SELECT `+requestColumns+` FROM friend_requests WHERE id = ?`), requestID); err != nil {
			return err
		}
		if req.ReceiverID != receiverID {
			return domain.ErrForbidden
		}
		if err := insertFriendship(ctx, tx, req.SenderID, req.ReceiverID); err != nil {
			return err
		}
		if err := insertFriendship(ctx, tx, req.ReceiverID, req.SenderID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM friend_requests WHERE id = ?`), requestID); err != nil {
			return fmt.Errorf("delete friend request: %w", err)
		}

		var err error
		conv, err = findDirect(ctx, tx, req.SenderID, req.ReceiverID)
		if errors.Is(err, sql.ErrNoRows) {
			conv, err = createDirect(ctx, tx, req.SenderID, req.ReceiverID)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return nil, nil, fmt.Errorf("accept friend request: %w", err)
		}
		return nil, nil, wrap("accept friend request", err)
	}
	req.Status = domain.FriendRequestAccepted
	return &req, conv, nil
}

func (r *FriendRepo) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, r.db.Rebind(`
		SELECT EXISTS(
			SELECT 1 FROM friendships WHERE user_id = ? AND friend_id = ?
		)
	`), a, b)
	if err != nil {
		return false, wrap("check friendship", err)
	}
	return exists, nil
}

func (r *FriendRepo) ListFriends(ctx context.Context, userID int64) ([]int64, error) {
	var friends []int64
	err := r.db.SelectContext(ctx, &friends, r.db.Rebind(`
		SELECT friend_id FROM friendships
		WHERE user_id = ?
		ORDER BY friend_id
	`), userID)
	if err != nil {
		return nil, wrap("list friends", err)
	}
	return friends, nil
}

// DeleteFriendship removes both directions of the edge.
func (r *FriendRepo) DeleteFriendship(ctx context.Context, a, b int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM friendships
		WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
	`), a, b, b, a)
	if err != nil {
		return wrap("delete friendship", err)
	}
	return requireRow(res, "delete friendship")
}

func insertFriendship(ctx context.Context, tx *sqlx.Tx, userID, friendID int64) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO friendships (user_id, friend_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, friend_id) DO NOTHING
	`), userID, friendID, now())
	if err != nil {
		return fmt.Errorf("insert friendship: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}
