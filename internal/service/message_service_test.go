package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"zchat-signal/internal/domain"
	"zchat-signal/internal/events"
	"zchat-signal/internal/logging"
	"zchat-signal/internal/protocol"
	"zchat-signal/internal/security"
	"zchat-signal/internal/service"
	"zchat-signal/internal/store/sqlstore"
)

type messageFixture struct {
	svc          *service.MessageService
	repos        *sqlstore.Repositories
	rec          *recorder
	alice, bob   int64
	carol        int64
	conversation int64
}

func newMessageFixture(t *testing.T, maxMessages int) *messageFixture {
	t.Helper()
	ctx := context.Background()
	repos := newRepos(t)
	ids := seedUsers(t, repos, "alice", "bob", "carol")

	req, err := repos.Friends.CreateRequest(ctx, ids[0], ids[1])
	require.NoError(t, err)
	_, conv, err := repos.Friends.AcceptRequest(ctx, req.ID, ids[1])
	require.NoError(t, err)

	enc, err := security.NewEncryptor([]byte("test-key"), nil)
	require.NoError(t, err)

	rec := newRecorder()
	logger := logging.Discard()
	svc := service.NewMessageService(repos.Conversations, repos.Messages, enc, rec, events.NewNoopPublisher(logger), nil, logger, maxMessages)
	return &messageFixture{
		svc:          svc,
		repos:        repos,
		rec:          rec,
		alice:        ids[0],
		bob:          ids[1],
		carol:        ids[2],
		conversation: conv.ID,
	}
}

func TestSendMessage_InvalidatesEveryParticipant(t *testing.T) {
	ctx := context.Background()
	fx := newMessageFixture(t, 0)

	msg, err := fx.svc.SendMessage(ctx, fx.alice, service.SendMessageInput{
		ConversationID: fx.conversation,
		Content:        "héllo, bob",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "héllo, bob", msg.Content, "content is encrypted at rest")

	for _, id := range []int64{fx.alice, fx.bob} {
		require.Len(t, fx.rec.frames[id], 1, "exactly one signal per participant")
		f := fx.rec.frames[id][0]
		assert.Equal(t, protocol.EventInvalidate, f.Type)
		var p protocol.InvalidatePayload
		require.NoError(t, f.Decode(&p))
		assert.Equal(t, protocol.ScopeMessages, p.Scope)
		assert.Equal(t, fx.conversation, p.ConversationID)
	}
	assert.Empty(t, fx.rec.types(fx.carol))

	views, err := fx.svc.ListMessages(ctx, fx.bob, fx.conversation, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "héllo, bob", views[0].Content, "round trip is byte for byte")
	assert.Equal(t, fx.alice, views[0].SenderID)
}

func TestSendMessage_ByReceiver(t *testing.T) {
	ctx := context.Background()
	fx := newMessageFixture(t, 0)

	msg, err := fx.svc.SendMessage(ctx, fx.bob, service.SendMessageInput{ReceiverID: fx.alice, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, fx.conversation, msg.ConversationID)

	_, err = fx.svc.SendMessage(ctx, fx.bob, service.SendMessageInput{ReceiverID: fx.carol, Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendMessage_FileMessage(t *testing.T) {
	ctx := context.Background()
	fx := newMessageFixture(t, 0)

	path, typ := "uploads/cat.png", "image/png"
	_, err := fx.svc.SendMessage(ctx, fx.alice, service.SendMessageInput{
		ConversationID: fx.conversation,
		FilePath:       &path,
		FileType:       &typ,
	})
	require.NoError(t, err)

	views, err := fx.svc.ListMessages(ctx, fx.alice, fx.conversation, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].FilePath)
	assert.Equal(t, path, *views[0].FilePath)
	assert.Equal(t, "", views[0].Content)
}

func TestSendMessage_Rejections(t *testing.T) {
	ctx := context.Background()
	fx := newMessageFixture(t, 0)

	cases := []struct {
		name   string
		sender int64
		in     service.SendMessageInput
		want   error
	}{
		{"Empty", fx.alice, service.SendMessageInput{ConversationID: fx.conversation, Content: "   "}, domain.ErrInvalidInput},
		{"TooLong", fx.alice, service.SendMessageInput{ConversationID: fx.conversation, Content: strings.Repeat("a", 5001)}, domain.ErrInvalidInput},
		{"NoAddress", fx.alice, service.SendMessageInput{Content: "x"}, domain.ErrInvalidInput},
		{"Outsider", fx.carol, service.SendMessageInput{ConversationID: fx.conversation, Content: "x"}, domain.ErrForbidden},
		{"UnknownConversation", fx.alice, service.SendMessageInput{ConversationID: 999, Content: "x"}, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.svc.SendMessage(ctx, tc.sender, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, fx.rec.total(), "failed sends notify nobody")

	_, err := fx.svc.ListMessages(ctx, fx.carol, fx.conversation, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSendMessage_Retention(t *testing.T) {
	ctx := context.Background()
	fx := newMessageFixture(t, 2)

	for _, c := range []string{"one", "two", "three"} {
		_, err := fx.svc.SendMessage(ctx, fx.alice, service.SendMessageInput{ConversationID: fx.conversation, Content: c})
		require.NoError(t, err)
	}

	views, err := fx.svc.ListMessages(ctx, fx.alice, fx.conversation, 0)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "two", views[0].Content)
	assert.Equal(t, "three", views[1].Content)
}

func TestConversations(t *testing.T) {
	ctx := context.Background()
	fx := newMessageFixture(t, 0)

	convs, err := fx.svc.Conversations(ctx, fx.bob)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, []int64{fx.alice, fx.bob}, convs[0].ParticipantIDs)

	convs, err = fx.svc.Conversations(ctx, fx.carol)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

type MockMessageRepo struct {
	mock.Mock
	domain.MessageRepository
}

func (m *MockMessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) ListForConversation(ctx context.Context, conversationID int64, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	return nil, args.Error(1)
}

type MockConversationRepo struct {
	mock.Mock
	domain.ConversationRepository
}

func (m *MockConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func newMockedMessageService(t *testing.T, convs *MockConversationRepo, msgs *MockMessageRepo, rec *recorder) *service.MessageService {
	t.Helper()
	enc, err := security.NewEncryptor([]byte("test-key"), nil)
	require.NoError(t, err)
	logger := logging.Discard()
	return service.NewMessageService(convs, msgs, enc, rec, events.NewNoopPublisher(logger), nil, logger, 0)
}

func TestSendMessage_StorageFailureNotifiesNobody(t *testing.T) {
	convs := new(MockConversationRepo)
	convs.On("IsParticipant", mock.Anything, int64(4), int64(1)).Return(true, nil)
	msgs := new(MockMessageRepo)
	msgs.On("Append", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	rec := newRecorder()
	svc := newMockedMessageService(t, convs, msgs, rec)

	_, err := svc.SendMessage(context.Background(), 1, service.SendMessageInput{ConversationID: 4, Content: "hello"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, rec.total(), "a message that was not stored is never announced")
	msgs.AssertExpectations(t)
}

func TestListMessages_LimitIsBounded(t *testing.T) {
	convs := new(MockConversationRepo)
	convs.On("IsParticipant", mock.Anything, int64(4), int64(1)).Return(true, nil)
	msgs := new(MockMessageRepo)
	msgs.On("ListForConversation", mock.Anything, int64(4), 100).Return(nil, nil).Once()
	msgs.On("ListForConversation", mock.Anything, int64(4), 1000).Return(nil, nil).Once()
	msgs.On("ListForConversation", mock.Anything, int64(4), 25).Return(nil, nil).Once()

	svc := newMockedMessageService(t, convs, msgs, newRecorder())
	ctx := context.Background()
	for _, limit := range []int{0, 1_000_000_000, 25} {
		views, err := svc.ListMessages(ctx, 1, 4, limit)
		require.NoError(t, err)
		assert.Empty(t, views)
	}
	msgs.AssertExpectations(t)
}
