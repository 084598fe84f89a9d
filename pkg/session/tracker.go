package session

import (
	"time"

	"go.uber.org/zap"

	"lanhop/pkg/memkv"
	"lanhop/pkg/protocol/codec"
)

// DefaultStreamIdle is how long an inbound stream survives without frames.
const DefaultStreamIdle = 30 * time.Second

const streamPrefix = "stream/"

var recordCodec = func() codec.Codec {
	c, err := codec.CBOR()
	if err != nil {
		panic(err)
	}
	return c
}()

// StreamTracker follows inbound streams keyed by stream id. A stream that
// receives no frame for the idle timeout is forgotten.
type StreamTracker struct {
	kv   *memkv.Store
	idle time.Duration
}

// NewStreamTracker keeps sessions in kv. idle <= 0 selects DefaultStreamIdle.
func NewStreamTracker(kv *memkv.Store, idle time.Duration) *StreamTracker {
	if idle <= 0 {
		idle = DefaultStreamIdle
	}
	return &StreamTracker{kv: kv, idle: idle}
}

// RegisterReceivedFrame records one frame. The first frame of an unseen id
// creates the session (created is true). Frames are counted in arrival
// order; seq only updates the latest observed sequence number.
func (t *StreamTracker) RegisterReceivedFrame(streamID, sender string, seq int64) (StreamingSession, bool) {
	var out StreamingSession
	now := time.Now()
	created, stored := t.kv.Upsert(streamPrefix+streamID, t.idle, func(old []byte, exists bool) []byte {
		out = StreamingSession{}
		if exists {
			if err := recordCodec.Unmarshal(old, &out); err != nil {
				zap.L().Warn("stream record corrupt, resetting", zap.String("stream", streamID), zap.Error(err))
				exists = false
			}
		}
		if !exists {
			out = StreamingSession{ID: streamID, Role: RoleReceiver, Sender: sender, StartedAt: now, Active: true}
		}
		out.Frames++
		out.LastSequence = seq
		out.LastFrameAt = now
		b, err := recordCodec.Marshal(&out)
		if err != nil {
			zap.L().Warn("stream record encode failed", zap.String("stream", streamID), zap.Error(err))
			return old
		}
		return b
	})
	if !stored {
		zap.L().Warn("stream table full, frame not tracked", zap.String("stream", streamID))
	}
	if created {
		zap.L().Info("inbound stream", zap.String("stream", streamID), zap.String("from", sender))
	}
	return out, created
}

func (t *StreamTracker) Get(streamID string) (StreamingSession, bool) {
	b, ok := t.kv.Get(streamPrefix + streamID)
	if !ok {
		return StreamingSession{}, false
	}
	var s StreamingSession
	if err := recordCodec.Unmarshal(b, &s); err != nil {
		return StreamingSession{}, false
	}
	return s, true
}

// List returns all tracked inbound streams ordered by id.
func (t *StreamTracker) List() []StreamingSession {
	var out []StreamingSession
	t.kv.Range(streamPrefix, func(_ string, b []byte) bool {
		var s StreamingSession
		if recordCodec.Unmarshal(b, &s) == nil {
			out = append(out, s)
		}
		return true
	})
	return out
}

// Remove forgets a stream, e.g. after the peer announced its end.
func (t *StreamTracker) Remove(streamID string) bool {
	return t.kv.Delete(streamPrefix + streamID)
}
