package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanhop/pkg/memkv"
	"lanhop/pkg/protocol"
)

func TestHistoryFormats(t *testing.T) {
	for _, format := range []string{"json", "cbor", "proto"} {
		t.Run(format, func(t *testing.T) {
			kv := memkv.New(memkv.Options{})
			defer kv.Close()
			h, err := New(kv, format, 0)
			require.NoError(t, err)

			env := protocol.NewStreamFrame("s-1", 7, []byte("png"))
			env.SenderAddress = "Apple/Bacon/Cheese"
			env.Undecryptable = true
			env.ReceivedAt = time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
			seq, err := h.Add(&env)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), seq)

			text := protocol.NewText("hi")
			_, err = h.Add(&text)
			require.NoError(t, err)

			list := h.List()
			require.Len(t, list, 2)
			r := list[0]
			assert.Equal(t, uint64(1), r.Seq)
			assert.Equal(t, "stream-frame", r.Kind)
			assert.Equal(t, "s-1", r.StreamID)
			assert.Equal(t, int64(7), r.SequenceNumber)
			assert.Equal(t, int64(3), r.Size)
			assert.Equal(t, "Apple/Bacon/Cheese", r.Sender)
			assert.True(t, r.Undecryptable)
			assert.True(t, env.ReceivedAt.Equal(r.ReceivedAt))
			assert.Equal(t, "text", list[1].Kind)
		})
	}
}

func TestHistoryExpires(t *testing.T) {
	kv := memkv.New(memkv.Options{})
	defer kv.Close()
	h, err := New(kv, "cbor", 40*time.Millisecond)
	require.NoError(t, err)
	env := protocol.NewLink("https://example.com")
	_, err = h.Add(&env)
	require.NoError(t, err)
	assert.Len(t, h.List(), 1)
	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, h.List())
}

func TestHistoryRejectsFormat(t *testing.T) {
	_, err := New(nil, "xml", 0)
	assert.Error(t, err)
}
