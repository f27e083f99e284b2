// Package sqlstore implements the domain repositories on top of sqlx. Queries
// are written with '?' placeholders and rebound for the connected dialect, so
// the same repositories serve both SQLite and PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"zchat-signal/internal/domain"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// New wraps an opened database. driverName selects the placeholder style and
// must be the name the database was opened with ("sqlite" or "pgx").
func New(db *sql.DB, driverName string) *sqlx.DB {
	return sqlx.NewDb(db, driverName)
}

// Repositories bundles every repository over one database.
type Repositories struct {
	Users         *UserRepo
	Friends       *FriendRepo
	Conversations *ConversationRepo
	Messages      *MessageRepo
	Calls         *CallRepo
}

// NewRepositories builds all repositories over db.
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Users:         NewUserRepo(db),
		Friends:       NewFriendRepo(db),
		Conversations: NewConversationRepo(db),
		Messages:      NewMessageRepo(db),
		Calls:         NewCallRepo(db),
	}
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// wrap annotates err, translating a missing row into domain.ErrNotFound and a
// unique violation into domain.ErrConflict.
func wrap(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, domain.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func now() time.Time {
	return time.Now().UTC()
}
