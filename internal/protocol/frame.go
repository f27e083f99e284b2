// Package protocol defines the frames exchanged over a session channel. Both the
// server (internal/ws) and the client (internal/client) speak it.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame is the envelope of every message on a session channel.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into a frame of the given type. A nil payload
// produces a frame without a payload field.
func NewFrame(eventType string, payload any) (Frame, error) {
	f := Frame{Type: eventType}
	if payload == nil {
		return f, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	f.Payload = raw
	return f, nil
}

// MustFrame is NewFrame for payload types that always marshal.
func MustFrame(eventType string, payload any) Frame {
	f, err := NewFrame(eventType, payload)
	if err != nil {
		panic(err)
	}
	return f
}

// WithRequestID returns a copy of f correlated to requestID.
func (f Frame) WithRequestID(requestID string) Frame {
	f.RequestID = requestID
	return f
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (f Frame) Decode(v any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Type, err)
	}
	return nil
}

// ErrorPayload is carried by EventError frames.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// AckPayload is carried by EventAck frames.
type AckPayload struct {
	Status string `json:"status"`
}

// ErrorFrame builds an error frame correlated to requestID.
func ErrorFrame(requestID, code, message string, retryable bool) Frame {
	return MustFrame(EventError, ErrorPayload{Code: code, Message: message, Retryable: retryable}).WithRequestID(requestID)
}

// AckFrame builds a success acknowledgment correlated to requestID.
func AckFrame(requestID string) Frame {
	return MustFrame(EventAck, AckPayload{Status: "ok"}).WithRequestID(requestID)
}

// Error codes carried in ErrorPayload.Code.
const (
	CodeInvalidPayload    = "invalid_payload"
	CodeUnknownEvent      = "unknown_event"
	CodeStorageFailure    = "storage_failure"
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeConflict          = "conflict"
	CodeBusy              = "busy"
	CodeCallNotFound      = "call_not_found"
	CodeCallEnded         = "call_ended"
	CodeInvalidTransition = "invalid_transition"
)
