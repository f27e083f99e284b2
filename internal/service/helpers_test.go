package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"zchat-signal/internal/domain"
	"zchat-signal/internal/protocol"
	sqlitestore "zchat-signal/internal/store/sqlite"
	"zchat-signal/internal/store/sqlstore"
)

// recorder is a Notifier that keeps every frame delivered to a reachable user.
type recorder struct {
	mu      sync.Mutex
	frames  map[int64][]protocol.Frame
	offline map[int64]bool
}

func newRecorder() *recorder {
	return &recorder{frames: map[int64][]protocol.Frame{}, offline: map[int64]bool{}}
}

func (r *recorder) Notify(userID int64, f protocol.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline[userID] {
		return false
	}
	r.frames[userID] = append(r.frames[userID], f)
	return true
}

func (r *recorder) setOffline(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline[userID] = true
}

func (r *recorder) types(userID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, f := range r.frames[userID] {
		out = append(out, f.Type)
	}
	return out
}

// scopes returns the invalidation scopes delivered to userID, in order.
func (r *recorder) scopes(t *testing.T, userID int64) []string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, f := range r.frames[userID] {
		if f.Type != protocol.EventInvalidate {
			continue
		}
		var p protocol.InvalidatePayload
		require.NoError(t, f.Decode(&p))
		out = append(out, p.Scope)
	}
	return out
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, fs := range r.frames {
		n += len(fs)
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = map[int64][]protocol.Frame{}
}

func newRepos(t *testing.T) *sqlstore.Repositories {
	t.Helper()
	db, err := sqlitestore.Open("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlitestore.Migrate(db))
	return sqlstore.NewRepositories(sqlstore.New(db, sqlitestore.DriverName))
}

func seedUsers(t *testing.T, repos *sqlstore.Repositories, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		u := &domain.User{Username: name, HashedPassword: "x"}
		require.NoError(t, repos.Users.Create(context.Background(), u))
		ids = append(ids, u.ID)
	}
	return ids
}
