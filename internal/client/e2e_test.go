package client_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zchat-signal/internal/client"
	"zchat-signal/internal/domain"
	"zchat-signal/internal/events"
	"zchat-signal/internal/logging"
	"zchat-signal/internal/protocol"
	"zchat-signal/internal/security"
	"zchat-signal/internal/service"
	"zchat-signal/internal/signaling"
	sqlitestore "zchat-signal/internal/store/sqlite"
	"zchat-signal/internal/store/sqlstore"
	"zchat-signal/internal/ws"
)

type ended struct {
	callID  string
	verdict domain.CallVerdict
}

type peer struct {
	user     *domain.User
	session  *client.Session
	agent    *client.Agent
	incoming chan protocol.IncomingCallPayload
	accepted chan string
	ended    chan ended
}

type stack struct {
	url    string
	tokens *security.TokenService
	repos  *sqlstore.Repositories
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db, err := sqlitestore.Open("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlitestore.Migrate(db))
	repos := sqlstore.NewRepositories(sqlstore.New(db, sqlitestore.DriverName))

	logger := logging.Discard()
	tokens := security.NewTokenService("test-secret", time.Hour)
	enc, err := security.NewEncryptor([]byte("test-key"), nil)
	require.NoError(t, err)
	registry := ws.NewRegistry(logger)
	pub := events.NewNoopPublisher(logger)

	handler := ws.NewHandler(
		registry,
		service.NewAuthService(repos.Users, tokens, security.NewPasswordHasher(4)),
		service.NewSocialService(repos.Users, repos.Friends, registry, pub, nil, logger),
		service.NewMessageService(repos.Conversations, repos.Messages, enc, registry, pub, nil, logger, 0),
		signaling.NewEngine(registry, repos.Calls, pub, nil, logger, signaling.Options{}),
		nil,
		logger,
		ws.Options{},
	)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &stack{url: "ws" + strings.TrimPrefix(srv.URL, "http"), tokens: tokens, repos: repos}
}

func (st *stack) connect(t *testing.T, name string) *peer {
	t.Helper()
	u := &domain.User{Username: name, HashedPassword: "x"}
	require.NoError(t, st.repos.Users.Create(context.Background(), u))
	tok, err := st.tokens.Issue(u.ID, u.Username)
	require.NoError(t, err)

	p := &peer{
		user:     u,
		incoming: make(chan protocol.IncomingCallPayload, 4),
		accepted: make(chan string, 4),
		ended:    make(chan ended, 4),
	}
	connected := make(chan struct{})
	p.session, err = client.Dial(context.Background(), client.Config{
		URL:   st.url,
		Token: tok,
		Handlers: map[string]client.Handler{
			protocol.EventConnected: func(protocol.Frame) { close(connected) },
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.session.Close() })
	<-connected

	p.agent = client.NewAgent(p.session, nil, client.CallEvents{
		Incoming: func(_ domain.CallKind, in protocol.IncomingCallPayload) { p.incoming <- in },
		Accepted: func(callID string, _ json.RawMessage) { p.accepted <- callID },
		Ended:    func(callID string, v domain.CallVerdict) { p.ended <- ended{callID, v} },
	}, logging.Discard())
	p.agent.Attach(p.session)
	return p
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
		panic("unreachable")
	}
}

func TestCallBetweenAgents(t *testing.T) {
	st := newStack(t)
	bob := st.connect(t, "bob")
	carol := st.connect(t, "carol")

	callID, err := bob.agent.StartCall(domain.CallVideo, carol.user.ID, 0, json.RawMessage(`{"type":"offer"}`))
	require.NoError(t, err)

	in := receive(t, carol.incoming)
	assert.Equal(t, callID, in.CallID)
	assert.Equal(t, bob.user.ID, in.CallerID)

	require.NoError(t, carol.agent.Accept(callID, json.RawMessage(`{"type":"answer"}`)))
	assert.Equal(t, callID, receive(t, bob.accepted))

	require.NoError(t, bob.agent.End(callID))
	assert.Equal(t, ended{callID, domain.VerdictAccepted}, receive(t, bob.ended))
	assert.Equal(t, ended{callID, domain.VerdictAccepted}, receive(t, carol.ended))
	assert.Equal(t, 0, bob.agent.Guard().Len())
	assert.Equal(t, 0, carol.agent.Guard().Len())
}

func TestCallToBusyPeerEndsBusy(t *testing.T) {
	st := newStack(t)
	alice := st.connect(t, "alice")
	bob := st.connect(t, "bob")
	carol := st.connect(t, "carol")

	first, err := bob.agent.StartCall(domain.CallVideo, carol.user.ID, 0, json.RawMessage(`{}`))
	require.NoError(t, err)
	receive(t, carol.incoming)

	second, err := alice.agent.StartCall(domain.CallVideo, bob.user.ID, 0, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, ended{second, domain.VerdictBusy}, receive(t, alice.ended), "busy, not missed")
	assert.Equal(t, 0, alice.agent.Guard().Len())

	cur, ok := bob.agent.Guard().Current()
	require.True(t, ok)
	assert.Equal(t, first, cur.CallID, "the busy peer keeps its own call")
}

func TestDeclineBetweenAgents(t *testing.T) {
	st := newStack(t)
	bob := st.connect(t, "bob")
	carol := st.connect(t, "carol")

	callID, err := bob.agent.StartCall(domain.CallVoice, carol.user.ID, 0, json.RawMessage(`{}`))
	require.NoError(t, err)
	receive(t, carol.incoming)

	require.NoError(t, carol.agent.Decline(callID))
	assert.Equal(t, ended{callID, domain.VerdictDenied}, receive(t, carol.ended))
	assert.Equal(t, ended{callID, domain.VerdictDenied}, receive(t, bob.ended))
}

func TestRejectedStartFreesAgent(t *testing.T) {
	st := newStack(t)
	bob := st.connect(t, "bob")
	carol := st.connect(t, "carol")

	callID, err := bob.agent.StartCall(domain.CallVideo, bob.user.ID, 0, json.RawMessage(`{}`))
	require.NoError(t, err, "the server is the one refusing")
	assert.Equal(t, ended{callID, domain.VerdictMissed}, receive(t, bob.ended))
	assert.Equal(t, 0, bob.agent.Guard().Len())

	next, err := bob.agent.StartCall(domain.CallVideo, carol.user.ID, 0, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, next, receive(t, carol.incoming).CallID)
}

func TestLogoutEndsLiveCall(t *testing.T) {
	st := newStack(t)
	bob := st.connect(t, "bob")
	carol := st.connect(t, "carol")

	callID, err := bob.agent.StartCall(domain.CallVoice, carol.user.ID, 0, json.RawMessage(`{}`))
	require.NoError(t, err)
	receive(t, carol.incoming)
	require.NoError(t, carol.agent.Accept(callID, json.RawMessage(`{}`)))
	receive(t, bob.accepted)

	require.NoError(t, bob.session.Close())
	assert.Equal(t, ended{callID, domain.VerdictAccepted}, receive(t, bob.ended))
	assert.Equal(t, 0, bob.agent.Guard().Len())
	assert.Equal(t, ended{callID, domain.VerdictAccepted}, receive(t, carol.ended))
}
