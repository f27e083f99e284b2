package signaling

import "errors"

var (
	ErrCallNotFound      = errors.New("call not found")
	ErrCallEnded         = errors.New("call already ended")
	ErrInvalidTransition = errors.New("invalid call state transition")
	// ErrBusy is returned to a caller that already has a live call.
	ErrBusy            = errors.New("user is busy")
	ErrNotParticipant  = errors.New("user is not a participant of the call")
	ErrInvalidArgument = errors.New("invalid call request")
)
