package signaling

import (
	"time"

	"zchat-signal/internal/domain"
)

// State is the server-side lifecycle of a call.
type State int

const (
	StateRinging State = iota + 1
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateRinging:
		return "ringing"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Live reports whether ICE and media negotiation may still flow.
func (s State) Live() bool {
	return s == StateRinging || s == StateConnected
}

// Snapshot is a copy of a call's state at one instant.
type Snapshot struct {
	ID             string
	Kind           domain.CallKind
	CallerID       int64
	CalleeID       int64
	ConversationID int64
	State          State
	Verdict        domain.CallVerdict
	StartedAt      time.Time
	ConnectedAt    time.Time
	EndedAt        time.Time
}

type session struct {
	Snapshot

	timer *time.Timer
	// created is closed once the call-log row exists, so that the finishing
	// write never overtakes the creating one.
	created chan struct{}
}

func (s *session) peer(userID int64) int64 {
	if userID == s.CallerID {
		return s.CalleeID
	}
	return s.CallerID
}

func (s *session) has(userID int64) bool {
	return userID == s.CallerID || userID == s.CalleeID
}

func (s *session) record() *domain.CallRecord {
	return &domain.CallRecord{
		ID:             s.ID,
		CallerID:       s.CallerID,
		CalleeID:       s.CalleeID,
		ConversationID: s.ConversationID,
		Kind:           s.Kind,
		Status:         domain.CallOngoing,
		StartedAt:      s.StartedAt,
	}
}
