package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zchat-signal/internal/protocol"
)

type numbered struct {
	N int `json:"n"`
}

// echoServer greets every channel with a burst of numbered frames and then
// echoes whatever it receives.
type echoServer struct {
	srv   *httptest.Server
	dials atomic.Int32

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newEchoServer(t *testing.T, burst int) *echoServer {
	t.Helper()
	es := &echoServer{}
	upgrader := websocket.Upgrader{}
	es.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		es.dials.Add(1)
		es.mu.Lock()
		es.conns = append(es.conns, conn)
		es.mu.Unlock()

		for i := 0; i < burst; i++ {
			if err := conn.WriteJSON(protocol.MustFrame("tick", numbered{N: i})); err != nil {
				return
			}
		}
		for {
			var f protocol.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
	}))
	t.Cleanup(es.srv.Close)
	return es
}

func (es *echoServer) url() string {
	return "ws" + strings.TrimPrefix(es.srv.URL, "http")
}

func (es *echoServer) dropAll() {
	es.mu.Lock()
	defer es.mu.Unlock()
	for _, c := range es.conns {
		c.Close()
	}
	es.conns = nil
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func TestSession_DeliversInArrivalOrder(t *testing.T) {
	es := newEchoServer(t, 100)
	got := make(chan int, 100)

	s, err := Dial(context.Background(), Config{
		URL:        es.url(),
		Token:      "good",
		NewBackOff: fastBackOff,
		Handlers: map[string]Handler{
			"tick": func(f protocol.Frame) {
				var p numbered
				if assert.NoError(t, f.Decode(&p)) {
					got <- p.N
				}
			},
		},
	})
	require.NoError(t, err)
	defer s.Close()

	for want := 0; want < 100; want++ {
		select {
		case n := <-got:
			require.Equal(t, want, n)
		case <-time.After(3 * time.Second):
			t.Fatalf("frame %d never arrived", want)
		}
	}
}

func TestSession_RejectsBadToken(t *testing.T) {
	es := newEchoServer(t, 0)
	_, err := Dial(context.Background(), Config{URL: es.url(), Token: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestSession_ReconnectsAndFiresHooks(t *testing.T) {
	es := newEchoServer(t, 0)

	var disconnects, reconnects atomic.Int32
	echoes := make(chan protocol.Frame, 4)

	s, err := Dial(context.Background(), Config{URL: es.url(), Token: "good", NewBackOff: fastBackOff})
	require.NoError(t, err)
	defer s.Close()
	s.OnDisconnect(func() { disconnects.Add(1) })
	s.OnReconnect(func() { reconnects.Add(1) })
	s.On("hello", func(f protocol.Frame) { echoes <- f })

	require.NoError(t, s.Send(protocol.MustFrame("hello", nil)))
	<-echoes

	es.dropAll()
	require.Eventually(t, func() bool {
		return reconnects.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), disconnects.Load())
	assert.Equal(t, int32(2), es.dials.Load())
	assert.True(t, s.Connected())

	require.NoError(t, s.Send(protocol.MustFrame("hello", nil)))
	select {
	case <-echoes:
	case <-time.After(3 * time.Second):
		t.Fatal("no echo after reconnect")
	}
}

func TestSession_Close(t *testing.T) {
	es := newEchoServer(t, 0)
	var disconnects atomic.Int32

	s, err := Dial(context.Background(), Config{URL: es.url(), Token: "good", NewBackOff: fastBackOff})
	require.NoError(t, err)
	s.OnDisconnect(func() { disconnects.Add(1) })

	require.NoError(t, s.Close())
	select {
	case <-s.Done():
	default:
		t.Fatal("session still running after Close")
	}
	assert.ErrorIs(t, s.Send(protocol.MustFrame("hello", nil)), ErrClosed)
	assert.Equal(t, int32(1), disconnects.Load(), "logout drops the channel once")
	assert.Equal(t, int32(1), es.dials.Load())

	require.NoError(t, s.Close())
	assert.Equal(t, int32(1), disconnects.Load())
}
