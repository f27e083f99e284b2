package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"zchat-signal/internal/protocol"
)

// ErrNotConnected is returned by Send while the channel is down.
var ErrNotConnected = errors.New("session channel is not connected")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("session closed")

const writeWait = 10 * time.Second

// Handler receives frames of one event type, in arrival order, on the
// session's read goroutine.
type Handler func(protocol.Frame)

type Config struct {
	// URL is the ws:// or wss:// address of the /ws endpoint.
	URL   string
	Token string

	Dialer *websocket.Dialer
	// NewBackOff builds the reconnect policy for each outage. Defaults to an
	// exponential backoff.
	NewBackOff func() backoff.BackOff
	// MaxReconnectTime bounds one outage. Zero means the backoff default.
	MaxReconnectTime time.Duration
	// Handlers are registered before the first frame is read.
	Handlers map[string]Handler
	Logger   *slog.Logger
}

// Session is an explicit handle on the client's session channel. It is
// opened on login with Dial and closed on logout with Close. While open it
// reconnects on its own.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu           sync.RWMutex
	handlers     map[string]Handler
	fallback     Handler
	onDisconnect []func()
	onReconnect  []func()

	writeMu sync.Mutex
	conn    *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial opens the channel. The first connection attempt is not retried.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Dialer == nil {
		d := *websocket.DefaultDialer
		cfg.Dialer = &d
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Session{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "session"),
		handlers: make(map[string]Handler, len(cfg.Handlers)),
		done:     make(chan struct{}),
	}
	for eventType, h := range cfg.Handlers {
		s.handlers[eventType] = h
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.conn = conn
	go s.run(conn)
	return s, nil
}

// On registers h for eventType, replacing any earlier handler.
func (s *Session) On(eventType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[eventType] = h
}

// OnUnhandled receives frames no handler is registered for.
func (s *Session) OnUnhandled(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = h
}

// OnDisconnect registers fn to run each time the channel drops, including
// the final drop on Close.
func (s *Session) OnDisconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = append(s.onDisconnect, fn)
}

// OnReconnect registers fn to run each time the channel is re-established.
func (s *Session) OnReconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReconnect = append(s.onReconnect, fn)
}

// Send writes f. Writes are serialized.
func (s *Session) Send(f protocol.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	if s.conn == nil {
		return ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s: %w", f.Type, err)
	}
	return nil
}

// Connected reports whether the channel is currently up.
func (s *Session) Connected() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn != nil
}

// Close stops reconnecting and closes the channel. It waits for the read
// goroutine to exit, then runs the OnDisconnect hooks if the channel was up.
func (s *Session) Close() error {
	s.cancel()
	s.writeMu.Lock()
	up := s.conn != nil
	if up {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	}
	s.writeMu.Unlock()
	<-s.done
	if up {
		s.fire(func() []func() { return s.onDisconnect })
	}
	return nil
}

// Done is closed once the session has stopped for good.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(fmt.Errorf("dial %s: unauthorized", s.cfg.URL))
		}
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	return conn, nil
}

func (s *Session) run(conn *websocket.Conn) {
	defer close(s.done)
	for {
		s.read(conn)

		s.writeMu.Lock()
		s.conn = nil
		s.writeMu.Unlock()
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("session channel lost")
		s.fire(func() []func() { return s.onDisconnect })

		var err error
		conn, err = s.reconnect()
		if err != nil {
			s.logger.Error("giving up on session channel", "error", err)
			return
		}

		s.writeMu.Lock()
		if s.ctx.Err() != nil {
			s.writeMu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.writeMu.Unlock()
		s.logger.Info("session channel restored")
		s.fire(func() []func() { return s.onReconnect })
	}
}

func (s *Session) reconnect() (*websocket.Conn, error) {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(s.cfg.NewBackOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Debug("reconnect failed", "error", err, "retry_in", next)
		}),
	}
	if s.cfg.MaxReconnectTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(s.cfg.MaxReconnectTime))
	}
	return backoff.Retry(s.ctx, func() (*websocket.Conn, error) {
		return s.connect(s.ctx)
	}, opts...)
}

func (s *Session) read(conn *websocket.Conn) {
	for {
		var f protocol.Frame
		if err := conn.ReadJSON(&f); err != nil {
			conn.Close()
			return
		}
		s.mu.RLock()
		h, ok := s.handlers[f.Type]
		if !ok {
			h = s.fallback
		}
		s.mu.RUnlock()
		if h != nil {
			h(f)
		}
	}
}

func (s *Session) fire(hooks func() []func()) {
	s.mu.RLock()
	fns := append([]func(){}, hooks()...)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
