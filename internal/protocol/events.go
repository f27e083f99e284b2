package protocol

import (
	"strings"

	"zchat-signal/internal/domain"
)

// Session lifecycle.
const (
	EventConnected = "connected"
	EventAck       = "ack"
	EventError     = "error"
)

// Social graph, client to server.
const (
	EventFriendRequest = "friend_request"
	EventUnsendRequest = "unsend_request"
	EventAcceptRequest = "accept_request"
	EventRejectRequest = "reject_request"
	EventRemoveFriend  = "remove_friend"
)

// Social graph, server to client. These are toast-level notices; the
// authoritative state is always re-fetched after an EventInvalidate.
const (
	EventNewFriendRequest  = "new_friend_request"
	EventFriendRequestSent = "friend_request_sent"
	EventRequestAccepted   = "request_accepted"
	EventRequestRejected   = "request_rejected"
	EventFriendRemoved     = "friend_removed"
	EventRequestUnsent     = "request-unsend"
)

// EventInvalidate tells a client that its cached view of a scope is stale.
const EventInvalidate = "invalidate"

// Messaging.
const (
	EventTextMessage      = "text_message"
	EventFileMessage      = "file_message"
	EventGetMessages      = "get_messages"
	EventDispatchMessages = "dispatch_messages"

	EventGetDirectChats      = "get_direct_chats"
	EventDispatchDirectChats = "dispatch_direct_chats"
)

// EventICECandidate flows in both directions.
const EventICECandidate = "ice_candidate"

// CallAction is the suffix-bearing part of a call event name. Call events are
// kind-qualified, e.g. "start_video_call" or "audio_call_missed".
type CallAction string

const (
	// client to server
	CallStart   CallAction = "start"
	CallAccept  CallAction = "accept"
	CallDecline CallAction = "decline"
	CallEnd     CallAction = "end"
	CallBusy    CallAction = "busy"

	// server to client
	CallIncoming CallAction = "incoming"
	CallDialing  CallAction = "dialing"
	CallAccepted CallAction = "accepted"
	CallDenied   CallAction = "denied"
	CallMissed   CallAction = "missed"
	CallEnded    CallAction = "ended"
	CallBusyPeer CallAction = "busy_peer"
)

// CallEvent returns the wire name of action for a call of the given kind.
func CallEvent(kind domain.CallKind, action CallAction) string {
	k := string(kind)
	switch action {
	case CallStart, CallAccept, CallDecline, CallEnd:
		return string(action) + "_" + k + "_call"
	case CallIncoming:
		return "incoming_" + k + "_call"
	case CallBusy:
		return "user_is_busy_" + k
	case CallBusyPeer:
		return k + "_call_busy"
	default:
		return k + "_call_" + string(action)
	}
}

type callEventKey struct {
	kind   domain.CallKind
	action CallAction
}

var callEventIndex = func() map[string]callEventKey {
	actions := []CallAction{
		CallStart, CallAccept, CallDecline, CallEnd, CallBusy,
		CallIncoming, CallDialing, CallAccepted, CallDenied, CallMissed, CallEnded, CallBusyPeer,
	}
	idx := make(map[string]callEventKey)
	for _, kind := range []domain.CallKind{domain.CallVoice, domain.CallVideo} {
		for _, a := range actions {
			idx[CallEvent(kind, a)] = callEventKey{kind: kind, action: a}
		}
	}
	return idx
}()

// ParseCallEvent reports the kind and action of a call event name.
func ParseCallEvent(eventType string) (domain.CallKind, CallAction, bool) {
	e, ok := callEventIndex[strings.TrimSpace(eventType)]
	return e.kind, e.action, ok
}

// VerdictAction maps a terminal verdict to the server-to-client action that
// announces it to the caller.
func VerdictAction(v domain.CallVerdict) CallAction {
	switch v {
	case domain.VerdictDenied:
		return CallDenied
	case domain.VerdictMissed:
		return CallMissed
	case domain.VerdictBusy:
		return CallBusyPeer
	default:
		return CallEnded
	}
}
