package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanhop/pkg/capture"
	"lanhop/pkg/obfuscate"
	"lanhop/pkg/protocol"
	"lanhop/pkg/transfer"
)

type recorder struct {
	mu   sync.Mutex
	envs []protocol.Envelope
	fail atomic.Bool
}

func (r *recorder) Send(_ context.Context, _ string, env protocol.Envelope, _ obfuscate.Settings) error {
	if r.fail.Load() {
		return errors.New("unreachable")
	}
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
	return nil
}

func (r *recorder) byStream() map[string][]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string][]int64{}
	for _, e := range r.envs {
		out[e.StreamID] = append(out[e.StreamID], e.SequenceNumber)
	}
	return out
}

var png = capture.Func(func(context.Context) ([]byte, error) { return []byte("png"), nil })

func waitFrames(t *testing.T, s *Streamer, n int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if a, ok := s.Active(); ok && a.Frames >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stream did not reach %d frames", n)
}

func TestClampInterval(t *testing.T) {
	assert.Equal(t, MinInterval, ClampInterval(time.Millisecond))
	assert.Equal(t, MaxInterval, ClampInterval(time.Hour))
	assert.Equal(t, DefaultInterval, ClampInterval(0))
	assert.Equal(t, 2*time.Second, ClampInterval(2*time.Second))
}

func TestStreamRestart(t *testing.T) {
	rec := &recorder{}
	s := NewStreamer(png, rec)
	ctx := context.Background()

	first, err := s.StartStream(ctx, "Apple", 250*time.Millisecond)
	require.NoError(t, err)
	waitFrames(t, s, 2)

	second, err := s.StartStream(ctx, "Bacon", time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	a, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, second, a.ID)
	assert.Equal(t, MinInterval, a.Interval)
	assert.Equal(t, "Bacon", a.Target)

	assert.ErrorIs(t, s.StopStreamID(first), ErrUnknownStream)
	waitFrames(t, s, 1)

	before := len(rec.byStream()[first])
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, before, len(rec.byStream()[first]), "old stream kept sending")

	require.NoError(t, s.StopStreamID(second))
	_, ok = s.Active()
	assert.False(t, ok)
	s.StopStream()

	seqs := rec.byStream()[first]
	for i, q := range seqs {
		assert.Equal(t, int64(i+1), q)
	}
}

func TestStreamSkipsFailures(t *testing.T) {
	var calls atomic.Int64
	src := capture.Func(func(context.Context) ([]byte, error) {
		if calls.Add(1)%2 == 0 {
			return nil, errors.New("no display")
		}
		return []byte("png"), nil
	})
	rec := &recorder{}
	rec.fail.Store(true)
	s := NewStreamer(src, rec)
	_, err := s.StartStream(context.Background(), "1", MinInterval)
	require.NoError(t, err)
	defer s.StopStream()

	time.Sleep(600 * time.Millisecond)
	a, ok := s.Active()
	require.True(t, ok)
	assert.True(t, a.Active)
	assert.Zero(t, a.Frames)
	assert.GreaterOrEqual(t, calls.Load(), int64(2))

	rec.fail.Store(false)
	waitFrames(t, s, 1)
}

func TestStartStreamValidates(t *testing.T) {
	s := NewStreamer(png, &recorder{}, WithObfuscation(func() obfuscate.Settings {
		return obfuscate.Settings{Enabled: true}
	}))
	_, err := s.StartStream(context.Background(), "not-a-word", time.Second)
	var ae *transfer.AddressError
	assert.ErrorAs(t, err, &ae)

	_, err = s.StartStream(context.Background(), "Apple", time.Second)
	assert.ErrorIs(t, err, obfuscate.ErrEmptyPassphrase)
	_, ok := s.Active()
	assert.False(t, ok)
}

func TestStreamEndsWithContext(t *testing.T) {
	done := make(chan StreamingSession, 1)
	s := NewStreamer(png, &recorder{}, OnFinished(func(ss StreamingSession) { done <- ss }))
	ctx, cancel := context.WithCancel(context.Background())
	id, err := s.StartStream(ctx, "Apple", MinInterval)
	require.NoError(t, err)
	cancel()
	select {
	case ss := <-done:
		assert.Equal(t, id, ss.ID)
		assert.False(t, ss.Active)
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not finish")
	}
	a, ok := s.Active()
	require.True(t, ok)
	assert.False(t, a.Active)
	s.StopStream()
}
