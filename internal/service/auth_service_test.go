package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"zchat-signal/internal/domain"
	"zchat-signal/internal/security"
	"zchat-signal/internal/service"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListByIDs(ctx context.Context, ids []int64) ([]*domain.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepo) SetOnlineStatus(ctx context.Context, userID int64, isOnline bool) error {
	args := m.Called(ctx, userID, isOnline)
	return args.Error(0)
}

func newAuthService(repo domain.UserRepository) (*service.AuthService, *security.TokenService, *security.PasswordHasher) {
	tokens := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4)
	return service.NewAuthService(repo, tokens, hasher), tokens, hasher
}

func TestRegister(t *testing.T) {
	mockRepo := new(MockUserRepo)
	svc, _, _ := newAuthService(mockRepo)

	t.Run("Success", func(t *testing.T) {
		mockRepo.On("GetByUsername", mock.Anything, "newuser").Return(nil, domain.ErrNotFound)
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "newuser" && u.HashedPassword != "Password1!"
		})).Return(nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{Username: "newuser", Password: "Password1!"})
		assert.NoError(t, err)
		assert.NotNil(t, user)
		assert.Equal(t, "newuser", user.Username)
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		existing := &domain.User{Username: "existing"}
		mockRepo.On("GetByUsername", mock.Anything, "existing").Return(existing, nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{Username: "existing", Password: "Password1!"})
		assert.Nil(t, user)
		assert.Equal(t, domain.ErrConflict, err)
	})

	t.Run("MissingPassword", func(t *testing.T) {
		_, err := svc.Register(context.Background(), service.RegisterInput{Username: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestLoginAndAuthenticate(t *testing.T) {
	mockRepo := new(MockUserRepo)
	svc, tokens, hasher := newAuthService(mockRepo)

	hashed, err := hasher.Hash("hunter22")
	require.NoError(t, err)
	alice := &domain.User{ID: 7, Username: "alice", HashedPassword: hashed, IsActive: true}
	mockRepo.On("GetByUsername", mock.Anything, "alice").Return(alice, nil)
	mockRepo.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)
	mockRepo.On("GetByID", mock.Anything, int64(7)).Return(alice, nil)
	mockRepo.On("GetByID", mock.Anything, int64(8)).Return(nil, domain.ErrNotFound)

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := svc.Login(context.Background(), service.LoginInput{Username: "alice", Password: "nope"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := svc.Login(context.Background(), service.LoginInput{Username: "ghost", Password: "x"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		resp, err := svc.Login(context.Background(), service.LoginInput{Username: "alice", Password: "hunter22"})
		require.NoError(t, err)
		assert.Equal(t, "bearer", resp.TokenType)

		user, err := svc.Authenticate(context.Background(), resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("DeletedUser", func(t *testing.T) {
		tok, err := tokens.Issue(8, "bob")
		require.NoError(t, err)
		_, err = svc.Authenticate(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UsernameMismatch", func(t *testing.T) {
		tok, err := tokens.Issue(7, "mallory")
		require.NoError(t, err)
		_, err = svc.Authenticate(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("IssueToken", func(t *testing.T) {
		tok, err := svc.IssueToken(context.Background(), "alice")
		require.NoError(t, err)
		claims, err := tokens.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Username)
	})
}
