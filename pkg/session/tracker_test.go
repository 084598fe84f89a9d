package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanhop/pkg/memkv"
)

func TestTrackerCountsFrames(t *testing.T) {
	kv := memkv.New(memkv.Options{})
	defer kv.Close()
	tr := NewStreamTracker(kv, time.Minute)

	s, created := tr.RegisterReceivedFrame("s1", "Apple/Bacon/Cheese", 1)
	assert.True(t, created)
	assert.Equal(t, int64(1), s.Frames)
	assert.Equal(t, RoleReceiver, s.Role)

	tr.RegisterReceivedFrame("s1", "Apple/Bacon/Cheese", 3)
	s, created = tr.RegisterReceivedFrame("s1", "Apple/Bacon/Cheese", 2)
	assert.False(t, created)
	assert.Equal(t, int64(3), s.Frames)
	assert.Equal(t, int64(2), s.LastSequence)

	tr.RegisterReceivedFrame("s2", "Date/Fig/Apple", 1)
	list := tr.List()
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)

	got, ok := tr.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "Apple/Bacon/Cheese", got.Sender)
	assert.True(t, got.Active)

	assert.True(t, tr.Remove("s1"))
	_, ok = tr.Get("s1")
	assert.False(t, ok)
}

func TestTrackerForgetsIdleStreams(t *testing.T) {
	kv := memkv.New(memkv.Options{})
	defer kv.Close()
	tr := NewStreamTracker(kv, 50*time.Millisecond)

	tr.RegisterReceivedFrame("s1", "x", 1)
	time.Sleep(150 * time.Millisecond)
	_, ok := tr.Get("s1")
	assert.False(t, ok)
	_, created := tr.RegisterReceivedFrame("s1", "x", 2)
	assert.True(t, created)
}
