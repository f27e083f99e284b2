package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zchat-signal/internal/domain"
)

func TestCallEventNames(t *testing.T) {
	cases := map[string]struct {
		kind   domain.CallKind
		action CallAction
	}{
		"start_video_call":    {domain.CallVideo, CallStart},
		"start_audio_call":    {domain.CallVoice, CallStart},
		"incoming_video_call": {domain.CallVideo, CallIncoming},
		"video_call_accepted": {domain.CallVideo, CallAccepted},
		"audio_call_denied":   {domain.CallVoice, CallDenied},
		"video_call_missed":   {domain.CallVideo, CallMissed},
		"audio_call_ended":    {domain.CallVoice, CallEnded},
		"user_is_busy_video":  {domain.CallVideo, CallBusy},
		"video_call_busy":     {domain.CallVideo, CallBusyPeer},
	}
	for name, want := range cases {
		assert.Equal(t, name, CallEvent(want.kind, want.action))

		kind, action, ok := ParseCallEvent(name)
		require.True(t, ok, name)
		assert.Equal(t, want.kind, kind)
		assert.Equal(t, want.action, action)
	}

	_, _, ok := ParseCallEvent("start_hologram_call")
	assert.False(t, ok)
}

func TestFrameDecodeEmptyPayload(t *testing.T) {
	f := Frame{Type: EventGetMessages}
	var p GetMessagesPayload
	require.NoError(t, f.Decode(&p))
	assert.Zero(t, p.ConversationID)

	f = MustFrame(EventGetMessages, GetMessagesPayload{ConversationID: 7})
	require.NoError(t, f.Decode(&p))
	assert.EqualValues(t, 7, p.ConversationID)
}
