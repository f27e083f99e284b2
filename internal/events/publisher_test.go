package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zchat-signal/internal/logging"
)

func TestEncode(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	body, err := Encode(CallEnded, CallEndedEvent{CallID: "c1", Verdict: "missed"}, at)
	require.NoError(t, err)

	var got struct {
		ID         string          `json:"id"`
		Type       string          `json:"type"`
		OccurredAt time.Time       `json:"occurred_at"`
		Payload    json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, CallEnded, got.Type)
	assert.True(t, got.OccurredAt.Equal(at))
	assert.JSONEq(t, `{"call_id":"c1","caller_id":0,"callee_id":0,"kind":"","verdict":"missed","duration_seconds":0}`, string(got.Payload))
}

func TestEncode_Unmarshalable(t *testing.T) {
	_, err := Encode(MessageCreated, make(chan int), time.Now())
	assert.Error(t, err)
}

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher(logging.Discard())
	assert.NoError(t, p.Publish(context.Background(), FriendshipCreated, FriendshipEvent{UserID: 1, FriendID: 2}))
	assert.NoError(t, p.Close())
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, string, any) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error { return nil }

func TestEmitSwallowsErrors(t *testing.T) {
	p := &failingPublisher{}
	Emit(context.Background(), p, logging.Discard(), MessageCreated, MessageEvent{MessageID: 1})
	assert.Equal(t, 1, p.calls)

	Emit(context.Background(), nil, logging.Discard(), MessageCreated, nil)
}
