package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"zchat-signal/internal/domain"
	"zchat-signal/internal/protocol"
)

// ErrInvalidTransition is returned for a local call action that does not fit
// the state of the call holding the guard.
var ErrInvalidTransition = errors.New("invalid call state transition")

// Transport writes frames to the server. *Session implements it.
type Transport interface {
	Send(f protocol.Frame) error
}

// CallEvents are the callbacks through which the agent surfaces call state.
// Any of them may be nil.
type CallEvents struct {
	Incoming func(kind domain.CallKind, in protocol.IncomingCallPayload)
	Accepted func(callID string, answer json.RawMessage)
	ICE      func(in protocol.ICECandidatePayload)
	// Ended runs exactly once per call admitted by the guard, after the guard
	// has been reset.
	Ended func(callID string, verdict domain.CallVerdict)
	// Error receives server error frames that do not concern the live call.
	Error func(f protocol.Frame)
}

// Agent is the client half of the call protocol. It admits calls through a
// Guard and resets the guard on every terminal path.
type Agent struct {
	transport Transport
	guard     *Guard
	events    CallEvents
	logger    *slog.Logger
}

func NewAgent(t Transport, guard *Guard, events CallEvents, logger *slog.Logger) *Agent {
	if guard == nil {
		guard = &Guard{}
	}
	return &Agent{
		transport: t,
		guard:     guard,
		events:    events,
		logger:    logger.With("component", "call_agent"),
	}
}

// Attach routes the session's call frames to the agent and ends the live
// call when the session channel drops. The agent takes over error frames;
// those it does not consume go to CallEvents.Error.
func (a *Agent) Attach(s *Session) {
	for _, kind := range []domain.CallKind{domain.CallVoice, domain.CallVideo} {
		for _, action := range []protocol.CallAction{
			protocol.CallIncoming, protocol.CallDialing, protocol.CallAccepted,
			protocol.CallDenied, protocol.CallMissed, protocol.CallEnded, protocol.CallBusyPeer,
		} {
			s.On(protocol.CallEvent(kind, action), a.HandleFrame)
		}
	}
	s.On(protocol.EventICECandidate, a.HandleFrame)
	s.On(protocol.EventError, a.HandleFrame)
	s.OnDisconnect(a.ConnectionLost)
}

// Guard returns the admission guard of the agent.
func (a *Agent) Guard() *Guard {
	return a.guard
}

// StartCall offers a call to peerID. It fails with ErrBusy without touching
// the network when a call is already live.
func (a *Agent) StartCall(kind domain.CallKind, peerID, conversationID int64, offer json.RawMessage) (string, error) {
	callID := uuid.NewString()
	if err := a.guard.Push(Entry{CallID: callID, PeerID: peerID, Kind: kind, Outgoing: true}); err != nil {
		return "", err
	}
	err := a.request(callID, protocol.CallEvent(kind, protocol.CallStart), protocol.StartCallPayload{
		CallID:         callID,
		ReceiverID:     peerID,
		ConversationID: conversationID,
		Offer:          offer,
	})
	if err != nil {
		a.guard.release(callID)
		return "", err
	}
	return callID, nil
}

// Accept answers the ringing incoming call.
func (a *Agent) Accept(callID string, answer json.RawMessage) error {
	cur, ok := a.guard.Current()
	if !ok || cur.CallID != callID || cur.Outgoing || cur.Connected {
		return fmt.Errorf("accept %s: %w", callID, ErrInvalidTransition)
	}
	if err := a.request(callID, protocol.CallEvent(cur.Kind, protocol.CallAccept), protocol.AcceptCallPayload{CallID: callID, Answer: answer}); err != nil {
		a.finish(callID, domain.VerdictMissed)
		return err
	}
	a.guard.update(callID, func(e *Entry) { e.Connected = true })
	return nil
}

// Decline refuses the ringing incoming call.
func (a *Agent) Decline(callID string) error {
	cur, ok := a.guard.Current()
	if !ok || cur.CallID != callID || cur.Outgoing || cur.Connected {
		return fmt.Errorf("decline %s: %w", callID, ErrInvalidTransition)
	}
	a.finish(callID, domain.VerdictDenied)
	return a.send(protocol.CallEvent(cur.Kind, protocol.CallDecline), protocol.CallRefPayload{CallID: callID})
}

// End hangs up the live call, ringing or connected.
func (a *Agent) End(callID string) error {
	cur, ok := a.guard.Current()
	if !ok || cur.CallID != callID {
		return fmt.Errorf("end %s: %w", callID, ErrInvalidTransition)
	}
	a.finish(callID, localVerdict(cur))
	return a.send(protocol.CallEvent(cur.Kind, protocol.CallEnd), protocol.CallRefPayload{CallID: callID})
}

// SendICE relays a local candidate to the peer of the live call.
func (a *Agent) SendICE(callID string, candidate json.RawMessage) error {
	cur, ok := a.guard.Current()
	if !ok || cur.CallID != callID {
		return fmt.Errorf("ice for %s: %w", callID, ErrInvalidTransition)
	}
	return a.send(protocol.EventICECandidate, protocol.ICECandidatePayload{
		CallID:    callID,
		ToUserID:  cur.PeerID,
		Candidate: candidate,
	})
}

// ConnectionLost ends the live call locally. The server ends it on its side
// when it notices the channel is gone.
func (a *Agent) ConnectionLost() {
	if cur, ok := a.guard.Current(); ok {
		a.logger.Info("call lost with session channel", "call_id", cur.CallID)
		verdict := domain.VerdictMissed
		if cur.Connected {
			verdict = domain.VerdictAccepted
		}
		a.finish(cur.CallID, verdict)
	}
}

// HandleFrame applies a server call frame.
func (a *Agent) HandleFrame(f protocol.Frame) {
	switch f.Type {
	case protocol.EventError:
		a.refused(f)
		return
	case protocol.EventICECandidate:
		var p protocol.ICECandidatePayload
		if err := f.Decode(&p); err != nil {
			return
		}
		if cur, ok := a.guard.Current(); !ok || cur.CallID != p.CallID {
			a.logger.Debug("dropping ice candidate for stale call", "call_id", p.CallID)
			return
		}
		if a.events.ICE != nil {
			a.events.ICE(p)
		}
		return
	}

	kind, action, ok := protocol.ParseCallEvent(f.Type)
	if !ok {
		return
	}
	switch action {
	case protocol.CallIncoming:
		var p protocol.IncomingCallPayload
		if err := f.Decode(&p); err != nil {
			return
		}
		a.incoming(kind, p)

	case protocol.CallAccepted:
		var p protocol.CallAcceptedPayload
		if err := f.Decode(&p); err != nil {
			return
		}
		ok := a.guard.update(p.CallID, func(e *Entry) {
			if e.Outgoing {
				e.Connected = true
			}
		})
		if !ok {
			a.logger.Debug("accept for unknown call", "call_id", p.CallID)
			return
		}
		if a.events.Accepted != nil {
			a.events.Accepted(p.CallID, p.Answer)
		}

	case protocol.CallDenied, protocol.CallMissed, protocol.CallEnded, protocol.CallBusyPeer:
		var p protocol.CallRefPayload
		if err := f.Decode(&p); err != nil {
			return
		}
		verdict := domain.CallVerdict(p.Verdict)
		if verdict == "" {
			verdict = actionVerdict(action)
		}
		a.finish(p.CallID, verdict)
	}
}

// refused ends the live call when the server rejected the start or accept
// that carried its id as request_id.
func (a *Agent) refused(f protocol.Frame) {
	cur, ok := a.guard.Current()
	if !ok || f.RequestID == "" || f.RequestID != cur.CallID {
		if a.events.Error != nil {
			a.events.Error(f)
		}
		return
	}
	var p protocol.ErrorPayload
	if err := f.Decode(&p); err != nil {
		a.logger.Debug("malformed error frame", "call_id", cur.CallID, "error", err)
	}
	verdict := domain.VerdictMissed
	if cur.Outgoing && !cur.Connected && p.Code == protocol.CodeBusy {
		verdict = domain.VerdictBusy
	}
	a.logger.Info("call refused by server", "call_id", cur.CallID, "code", p.Code)
	a.finish(cur.CallID, verdict)
}

func (a *Agent) incoming(kind domain.CallKind, p protocol.IncomingCallPayload) {
	err := a.guard.Push(Entry{CallID: p.CallID, PeerID: p.CallerID, Kind: kind})
	if errors.Is(err, ErrBusy) {
		a.logger.Info("rejecting call while busy", "call_id", p.CallID, "caller_id", p.CallerID)
		if err := a.send(protocol.CallEvent(kind, protocol.CallBusy), protocol.CallRefPayload{CallID: p.CallID}); err != nil {
			a.logger.Warn("failed to send busy", "call_id", p.CallID, "error", err)
		}
		return
	}
	if a.events.Incoming != nil {
		a.events.Incoming(kind, p)
	}
}

// finish resets the guard for callID and reports the verdict once.
func (a *Agent) finish(callID string, verdict domain.CallVerdict) {
	if !a.guard.release(callID) {
		return
	}
	if a.events.Ended != nil {
		a.events.Ended(callID, verdict)
	}
}

func (a *Agent) send(eventType string, payload any) error {
	return a.request("", eventType, payload)
}

// request sends a frame whose ack or error the server tags with requestID.
func (a *Agent) request(requestID, eventType string, payload any) error {
	f, err := protocol.NewFrame(eventType, payload)
	if err != nil {
		return err
	}
	return a.transport.Send(f.WithRequestID(requestID))
}

func localVerdict(e Entry) domain.CallVerdict {
	switch {
	case e.Connected:
		return domain.VerdictAccepted
	case e.Outgoing:
		return domain.VerdictMissed
	default:
		return domain.VerdictDenied
	}
}

func actionVerdict(action protocol.CallAction) domain.CallVerdict {
	switch action {
	case protocol.CallDenied:
		return domain.VerdictDenied
	case protocol.CallMissed:
		return domain.VerdictMissed
	case protocol.CallBusyPeer:
		return domain.VerdictBusy
	default:
		return domain.VerdictAccepted
	}
}
