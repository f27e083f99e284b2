// Package signaling runs the server-authoritative call state machine. It
// relays offers, answers and ICE candidates between two registered channels,
// owns the ring timer, and records every call exactly once in the call log.
package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"zchat-signal/internal/domain"
	"zchat-signal/internal/events"
	"zchat-signal/internal/metrics"
	"zchat-signal/internal/protocol"
)

const (
	DefaultRingTimeout    = 30 * time.Second
	DefaultEndedRetention = 2 * time.Minute
	persistTimeout        = 5 * time.Second
)

// Notifier delivers a frame to a user's live channel and reports whether the
// user was reachable.
type Notifier interface {
	Notify(userID int64, f protocol.Frame) bool
}

type Options struct {
	// RingTimeout bounds how long a call may ring before it is missed.
	RingTimeout time.Duration
	// EndedRetention is how long an ended call is remembered, so that late
	// accepts are answered with ErrCallEnded rather than ErrCallNotFound.
	EndedRetention time.Duration
}

// Engine holds every live call. At most one live call exists per user.
type Engine struct {
	notifier  Notifier
	calls     domain.CallRepository
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	ringTimeout    time.Duration
	endedRetention time.Duration
	now            func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	active   map[int64]string
}

func NewEngine(
	notifier Notifier,
	calls domain.CallRepository,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts Options,
) *Engine {
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = DefaultRingTimeout
	}
	if opts.EndedRetention <= 0 {
		opts.EndedRetention = DefaultEndedRetention
	}
	return &Engine{
		notifier:       notifier,
		calls:          calls,
		publisher:      publisher,
		metrics:        m,
		logger:         logger.With("component", "signaling"),
		ringTimeout:    opts.RingTimeout,
		endedRetention: opts.EndedRetention,
		now:            time.Now,
		sessions:       make(map[string]*session),
		active:         make(map[int64]string),
	}
}

// Start opens a call from callerID. The returned snapshot may already be
// ended: an unreachable callee yields a missed call and a callee with a live
// call yields a busy one. A caller that already has a live call gets ErrBusy.
func (e *Engine) Start(ctx context.Context, callerID int64, kind domain.CallKind, in protocol.StartCallPayload) (Snapshot, error) {
	if !kind.Valid() {
		return Snapshot{}, fmt.Errorf("unknown call kind %q: %w", kind, ErrInvalidArgument)
	}
	if in.ReceiverID == 0 || in.ReceiverID == callerID {
		return Snapshot{}, fmt.Errorf("receiver_id %d: %w", in.ReceiverID, ErrInvalidArgument)
	}
	if len(in.Offer) == 0 {
		return Snapshot{}, fmt.Errorf("offer is required: %w", ErrInvalidArgument)
	}
	id := in.CallID
	if id == "" {
		id = uuid.NewString()
	}

	e.mu.Lock()
	if _, busy := e.active[callerID]; busy {
		e.mu.Unlock()
		return Snapshot{}, ErrBusy
	}
	if _, dup := e.sessions[id]; dup {
		e.mu.Unlock()
		return Snapshot{}, fmt.Errorf("call %s: %w", id, domain.ErrConflict)
	}

	s := &session{
		Snapshot: Snapshot{
			ID:             id,
			Kind:           kind,
			CallerID:       callerID,
			CalleeID:       in.ReceiverID,
			ConversationID: in.ConversationID,
			State:          StateRinging,
			StartedAt:      e.now().UTC(),
		},
		created: make(chan struct{}),
	}
	e.sessions[id] = s

	var finish func()
	if _, busy := e.active[s.CalleeID]; busy {
		finish = e.finishLocked(s, domain.VerdictBusy, callerID)
	} else if !e.send(s.CalleeID, protocol.CallEvent(kind, protocol.CallIncoming), protocol.IncomingCallPayload{
		CallID:         id,
		CallerID:       callerID,
		ConversationID: s.ConversationID,
		Offer:          in.Offer,
	}) {
		finish = e.finishLocked(s, domain.VerdictMissed, callerID)
	} else {
		e.active[callerID] = id
		e.active[s.CalleeID] = id
		s.timer = time.AfterFunc(e.ringTimeout, func() { e.expire(id) })
		e.send(callerID, protocol.CallEvent(kind, protocol.CallDialing), protocol.DialingPayload{
			CallID:     id,
			ReceiverID: s.CalleeID,
		})
	}
	snap := s.Snapshot
	e.mu.Unlock()

	e.persistStart(s)
	if finish != nil {
		finish()
	}
	e.logger.Info("call started", "call_id", id, "kind", kind, "caller_id", callerID, "callee_id", s.CalleeID, "state", snap.State)
	return snap, nil
}

// Accept connects a ringing call and relays the callee's answer to the caller.
func (e *Engine) Accept(ctx context.Context, calleeID int64, in protocol.AcceptCallPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.lookupLocked(in.CallID, calleeID)
	if err != nil {
		return err
	}
	if calleeID != s.CalleeID || s.State != StateRinging {
		return fmt.Errorf("accept %s call by user %d: %w", s.State, calleeID, ErrInvalidTransition)
	}

	s.State = StateConnected
	s.ConnectedAt = e.now().UTC()
	s.timer.Stop()
	e.send(s.CallerID, protocol.CallEvent(s.Kind, protocol.CallAccepted), protocol.CallAcceptedPayload{
		CallID: s.ID,
		Answer: in.Answer,
	})
	e.logger.Info("call connected", "call_id", s.ID)
	return nil
}

// Decline ends a ringing call on behalf of the callee.
func (e *Engine) Decline(ctx context.Context, calleeID int64, callID string) error {
	return e.reject(calleeID, callID, domain.VerdictDenied)
}

// Busy ends a ringing call because the callee's client is already in a call.
func (e *Engine) Busy(ctx context.Context, calleeID int64, callID string) error {
	return e.reject(calleeID, callID, domain.VerdictBusy)
}

func (e *Engine) reject(calleeID int64, callID string, verdict domain.CallVerdict) error {
	e.mu.Lock()
	s, err := e.lookupLocked(callID, calleeID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if calleeID != s.CalleeID || s.State != StateRinging {
		e.mu.Unlock()
		return fmt.Errorf("%s %s call by user %d: %w", verdict, s.State, calleeID, ErrInvalidTransition)
	}
	finish := e.finishLocked(s, verdict, s.CallerID)
	e.mu.Unlock()

	finish()
	return nil
}

// End hangs up a live call. A connected call ends as accepted. A ringing call
// ends as missed when the caller cancels it and as denied when the callee
// hangs up.
func (e *Engine) End(ctx context.Context, userID int64, callID string) error {
	e.mu.Lock()
	s, err := e.lookupLocked(callID, userID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	verdict := domain.VerdictAccepted
	if s.State == StateRinging {
		verdict = domain.VerdictMissed
		if userID == s.CalleeID {
			verdict = domain.VerdictDenied
		}
	}
	finish := e.finishLocked(s, verdict, s.peer(userID))
	e.mu.Unlock()

	finish()
	return nil
}

// RelayICE forwards a candidate to the other participant of a live call.
// Candidates for unknown or ended calls are dropped.
func (e *Engine) RelayICE(ctx context.Context, fromID int64, in protocol.ICECandidatePayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.lookupLocked(in.CallID, fromID)
	if err != nil {
		e.logger.Debug("dropping ice candidate", "call_id", in.CallID, "from_user_id", fromID, "error", err)
		return err
	}
	to := s.peer(fromID)
	if in.ToUserID != 0 && in.ToUserID != to {
		e.logger.Debug("dropping misaddressed ice candidate", "call_id", s.ID, "to_user_id", in.ToUserID)
		return fmt.Errorf("candidate for user %d: %w", in.ToUserID, ErrNotParticipant)
	}
	e.send(to, protocol.EventICECandidate, protocol.ICECandidatePayload{
		CallID:     s.ID,
		FromUserID: fromID,
		Candidate:  in.Candidate,
	})
	return nil
}

// Disconnect ends the user's live call, if any, after their channel closed.
func (e *Engine) Disconnect(userID int64) {
	e.drop(userID, "")
}

// Abandon ends callID if it is still the user's live call. It is used when a
// superseded channel closes: only the calls that channel drove are ended.
func (e *Engine) Abandon(userID int64, callID string) {
	e.drop(userID, callID)
}

func (e *Engine) drop(userID int64, callID string) {
	e.mu.Lock()
	id, ok := e.active[userID]
	if !ok || (callID != "" && id != callID) {
		e.mu.Unlock()
		return
	}
	s := e.sessions[id]
	verdict := domain.VerdictAccepted
	if s.State == StateRinging {
		verdict = domain.VerdictMissed
	}
	finish := e.finishLocked(s, verdict, s.peer(userID))
	e.mu.Unlock()

	e.logger.Info("call ended by disconnect", "call_id", id, "user_id", userID)
	finish()
}

// Session returns a snapshot of a live or recently ended call.
func (e *Engine) Session(callID string) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[callID]
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot, true
}

// ActiveCall returns the id of the user's live call.
func (e *Engine) ActiveCall(userID int64) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.active[userID]
	return id, ok
}

// Close ends every live call. Used on shutdown.
func (e *Engine) Close() {
	e.mu.Lock()
	var finishers []func()
	for _, s := range e.sessions {
		if s.State.Live() {
			verdict := domain.VerdictAccepted
			if s.State == StateRinging {
				verdict = domain.VerdictMissed
			}
			finishers = append(finishers, e.finishLocked(s, verdict, s.CallerID, s.CalleeID))
		}
	}
	e.mu.Unlock()

	for _, f := range finishers {
		f()
	}
}

func (e *Engine) expire(callID string) {
	e.mu.Lock()
	s, ok := e.sessions[callID]
	if !ok || s.State != StateRinging {
		e.mu.Unlock()
		return
	}
	finish := e.finishLocked(s, domain.VerdictMissed, s.CallerID, s.CalleeID)
	e.mu.Unlock()

	e.logger.Info("call not answered", "call_id", callID)
	finish()
}

func (e *Engine) lookupLocked(callID string, userID int64) (*session, error) {
	s, ok := e.sessions[callID]
	if !ok {
		return nil, fmt.Errorf("call %q: %w", callID, ErrCallNotFound)
	}
	if !s.has(userID) {
		return nil, fmt.Errorf("call %s, user %d: %w", callID, userID, ErrNotParticipant)
	}
	if s.State == StateEnded {
		return nil, fmt.Errorf("call %s: %w", callID, ErrCallEnded)
	}
	return s, nil
}

// finishLocked moves s to Ended with verdict and notifies recipients. It
// must be called with e.mu held, on a live session. The returned function
// persists the verdict and must be called after e.mu is released.
func (e *Engine) finishLocked(s *session, verdict domain.CallVerdict, recipients ...int64) func() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.State = StateEnded
	s.Verdict = verdict
	s.EndedAt = e.now().UTC()
	for _, uid := range []int64{s.CallerID, s.CalleeID} {
		if e.active[uid] == s.ID {
			delete(e.active, uid)
		}
	}

	eventType := protocol.CallEvent(s.Kind, protocol.VerdictAction(verdict))
	for _, uid := range recipients {
		e.send(uid, eventType, protocol.CallRefPayload{CallID: s.ID, Verdict: string(verdict)})
	}

	id := s.ID
	time.AfterFunc(e.endedRetention, func() {
		e.mu.Lock()
		delete(e.sessions, id)
		e.mu.Unlock()
	})

	snap := s.Snapshot
	created := s.created
	return func() { e.persistFinish(snap, created) }
}

// send must be called with e.mu held so that frames to one user leave in
// transition order.
func (e *Engine) send(userID int64, eventType string, payload any) bool {
	f, err := protocol.NewFrame(eventType, payload)
	if err != nil {
		e.logger.Error("failed to build frame", "event", eventType, "error", err)
		return false
	}
	if !e.notifier.Notify(userID, f) {
		e.metrics.NotificationDropped(eventType)
		return false
	}
	return true
}

func (e *Engine) persistStart(s *session) {
	defer close(s.created)
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := e.calls.Create(ctx, s.record()); err != nil {
		e.logger.Error("failed to record call", "call_id", s.ID, "error", err)
	}
}

func (e *Engine) persistFinish(snap Snapshot, created <-chan struct{}) {
	<-created
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := e.calls.Finish(ctx, snap.ID, snap.Verdict, snap.EndedAt); err != nil {
		e.logger.Error("failed to record call verdict", "call_id", snap.ID, "verdict", snap.Verdict, "error", err)
	}

	e.metrics.CallFinished(string(snap.Kind), string(snap.Verdict))
	var duration float64
	if !snap.ConnectedAt.IsZero() {
		duration = snap.EndedAt.Sub(snap.ConnectedAt).Seconds()
	}
	events.Emit(ctx, e.publisher, e.logger, events.CallEnded, events.CallEndedEvent{
		CallID:          snap.ID,
		CallerID:        snap.CallerID,
		CalleeID:        snap.CalleeID,
		Kind:            string(snap.Kind),
		Verdict:         string(snap.Verdict),
		DurationSeconds: duration,
	})
	e.logger.Info("call ended", "call_id", snap.ID, "verdict", snap.Verdict)
}
