package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"zchat-signal/internal/domain"
)

const userColumns = `id, username, email, hashed_password, is_active, is_online, created_at, last_seen`

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	ts := now()
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO users (username, email, hashed_password, is_active, is_online, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), u.Username, u.Email, u.HashedPassword, true, false, ts, ts).Scan(&u.ID)
	if err != nil {
		return wrap("insert user", err)
	}
	u.IsActive = true
	u.IsOnline = false
	u.CreatedAt = ts
	u.LastSeen = ts
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	if err := r.db.GetContext(ctx, &u, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id); err != nil {
		return nil, wrap("get user", err)
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	if err := r.db.GetContext(ctx, &u, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username); err != nil {
		return nil, wrap("get user by username", err)
	}
	return &u, nil
}

func (r *UserRepo) ListByIDs(ctx context.Context, ids []int64) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?) ORDER BY username`, ids)
	if err != nil {
		return nil, fmt.Errorf("expand user ids: %w", err)
	}
	var users []*domain.User
	if err := r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...); err != nil {
		return nil, wrap("list users", err)
	}
	return users, nil
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id int64, isOnline bool) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?`), isOnline, now(), id)
	if err != nil {
		return wrap("set online status", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set online status: %w", domain.ErrNotFound)
	}
	return nil
}
