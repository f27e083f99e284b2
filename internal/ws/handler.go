package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"zchat-signal/internal/domain"
	"zchat-signal/internal/metrics"
	"zchat-signal/internal/protocol"
	"zchat-signal/internal/service"
	"zchat-signal/internal/signaling"
)

const (
	defaultSendBuffer   = 64
	defaultPingInterval = 25 * time.Second
	presenceTimeout     = 5 * time.Second
	frameTimeout        = 10 * time.Second
)

// Authenticator resolves a bearer token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
}

// Handler upgrades authenticated requests on /ws into session channels and
// dispatches inbound frames to the social, message and call components.
type Handler struct {
	registry *Registry
	auth     Authenticator
	social   *service.SocialService
	messages *service.MessageService
	calls    *signaling.Engine
	metrics  *metrics.Metrics
	logger   *slog.Logger

	checkOrigin  func(r *http.Request) bool
	upgrader     websocket.Upgrader
	sendBuffer   int
	pingInterval time.Duration
}

func NewHandler(
	registry *Registry,
	auth Authenticator,
	social *service.SocialService,
	messages *service.MessageService,
	calls *signaling.Engine,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts Options,
) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	checkOrigin := makeCheckOrigin(opts.AllowedOrigins)
	return &Handler{
		registry:    registry,
		auth:        auth,
		social:      social,
		messages:    messages,
		calls:       calls,
		metrics:     m,
		logger:      logger.With("component", "ws"),
		checkOrigin: checkOrigin,
		upgrader: websocket.Upgrader{
			CheckOrigin:  checkOrigin,
			Subprotocols: []string{"bearer"},
		},
		sendBuffer:   opts.SendBuffer,
		pingInterval: opts.PingInterval,
	}
}

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin accepts requests without an Origin header, since only
// browsers send one, and browser requests from an allowed origin.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	_, wildcard := allowed["*"]

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" || wildcard {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// extractToken reads the bearer token from the Authorization header, from a
// "bearer, <token>" Sec-WebSocket-Protocol pair, or from the token query
// parameter, in that order.
func extractToken(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	tokenStr, err := extractToken(r)
	if err != nil {
		var authErr wsAuthError
		if errors.As(err, &authErr) {
			http.Error(w, authErr.msg, authErr.status)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.auth.Authenticate(r.Context(), tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "user_id", user.ID, "error", err)
		return
	}

	c := newConn(wsConn, user.ID, h.sendBuffer, h.logger)
	go c.writePump(h.pingInterval)
	h.serve(c, user)
}

// serve runs the channel until the peer goes away. It owns registration and
// the presence transitions of the channel.
func (h *Handler) serve(c *conn, user *domain.User) {
	h.registry.Register(c)
	h.metrics.ChannelOpened()
	c.Send(protocol.MustFrame(protocol.EventConnected, protocol.ConnectedPayload{UserID: user.ID, ChannelID: c.ID()}))
	c.logger.Info("channel opened")

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	if err := h.social.SetPresence(ctx, user.ID, true); err != nil {
		c.logger.Warn("failed to mark online", "error", err)
	}
	cancel()

	defer func() {
		c.Close()
		h.metrics.ChannelClosed()
		if !h.registry.Remove(c) {
			// The client reset its call state when this channel dropped, so
			// calls driven from it must not outlive it.
			for _, callID := range c.calls {
				h.calls.Abandon(user.ID, callID)
			}
			c.logger.Info("stale channel closed")
			return
		}
		h.calls.Disconnect(user.ID)
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := h.social.SetPresence(ctx, user.ID, false); err != nil {
			c.logger.Warn("failed to mark offline", "error", err)
		}
		c.logger.Info("channel closed")
	}()

	pongWait := 2 * h.pingInterval
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		h.registry.Touch(c)
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		h.registry.Touch(c)

		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			c.Send(protocol.ErrorFrame("", protocol.CodeInvalidPayload, "frame must be a JSON object with a type", false))
			continue
		}
		h.metrics.FrameReceived(f.Type)

		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		h.dispatch(ctx, c, user, f)
		cancel()
	}
}
