package client

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zchat-signal/internal/domain"
)

func TestGuard(t *testing.T) {
	var g Guard
	assert.Equal(t, 0, g.Len())

	require.NoError(t, g.Push(Entry{CallID: "a", PeerID: 2, Kind: domain.CallVideo, Outgoing: true}))
	assert.Equal(t, 1, g.Len())
	assert.ErrorIs(t, g.Push(Entry{CallID: "b"}), ErrBusy)

	cur, ok := g.Current()
	require.True(t, ok)
	assert.Equal(t, "a", cur.CallID)

	assert.False(t, g.release("b"), "only the holder releases")
	assert.Equal(t, 1, g.Len())

	g.Reset()
	assert.Equal(t, 0, g.Len())
	g.Reset()
	_, ok = g.Current()
	assert.False(t, ok)
}

func TestGuard_ConcurrentPushAdmitsOne(t *testing.T) {
	var g Guard
	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Push(Entry{CallID: "x"}) == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, 1, g.Len())
}
