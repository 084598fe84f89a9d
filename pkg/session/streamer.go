package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lanhop/pkg/address"
	"lanhop/pkg/capture"
	"lanhop/pkg/obfuscate"
	"lanhop/pkg/protocol"
	"lanhop/pkg/transfer"
)

// Interval bounds for outbound streams.
const (
	MinInterval     = 250 * time.Millisecond
	MaxInterval     = 10 * time.Second
	DefaultInterval = time.Second
)

// ClampInterval forces d into [MinInterval, MaxInterval]. Zero selects
// DefaultInterval.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	}
	return d
}

// Emitter delivers one envelope; *transfer.Sender implements it.
type Emitter interface {
	Send(ctx context.Context, target string, env protocol.Envelope, obf obfuscate.Settings) error
}

// Streamer owns the single outbound stream of the process.
type Streamer struct {
	src        capture.Source
	out        Emitter
	obf        func() obfuscate.Settings
	onFinished func(StreamingSession)

	mu     sync.Mutex
	active *outbound
}

type outbound struct {
	sess    StreamingSession
	cancel  context.CancelFunc
	done    chan struct{}
	frames  atomic.Int64
	lastSeq atomic.Int64
	lastAt  atomic.Int64
}

// StreamerOption customises a Streamer.
type StreamerOption func(*Streamer)

// WithObfuscation supplies the settings read before every frame.
func WithObfuscation(fn func() obfuscate.Settings) StreamerOption {
	return func(s *Streamer) { s.obf = fn }
}

// OnFinished registers a callback run after a stream goroutine exits.
func OnFinished(fn func(StreamingSession)) StreamerOption {
	return func(s *Streamer) { s.onFinished = fn }
}

func NewStreamer(src capture.Source, out Emitter, opts ...StreamerOption) *Streamer {
	s := &Streamer{src: src, out: out, obf: func() obfuscate.Settings { return obfuscate.Settings{} }}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StartStream stops any running stream, waits for it to finish and starts a
// new one towards target. The stream lives until StopStream or until ctx is
// done. Capture and send failures skip the frame; the stream keeps going.
func (s *Streamer) StartStream(ctx context.Context, target string, interval time.Duration) (string, error) {
	if !address.IsValid(target) {
		return "", &transfer.AddressError{Input: target, Reason: "not a known word or octet sequence"}
	}
	if err := s.obf().Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	sctx, cancel := context.WithCancel(ctx)
	o := &outbound{
		sess: StreamingSession{
			ID:        uuid.NewString(),
			Role:      RoleSender,
			Target:    target,
			Interval:  ClampInterval(interval),
			StartedAt: time.Now(),
			Active:    true,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.active = o
	go s.run(sctx, o)
	zap.L().Info("stream started", zap.String("stream", o.sess.ID), zap.String("target", target), zap.Duration("interval", o.sess.Interval))
	return o.sess.ID, nil
}

// StopStream stops the active stream, if any, and waits for it to exit.
func (s *Streamer) StopStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// StopStreamID stops the active stream only if its id is id.
func (s *Streamer) StopStreamID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.sess.ID != id {
		return ErrUnknownStream
	}
	s.stopLocked()
	return nil
}

// Active returns a snapshot of the running stream.
func (s *Streamer) Active() (StreamingSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return StreamingSession{}, false
	}
	return s.active.snapshot(), true
}

func (s *Streamer) stopLocked() {
	o := s.active
	if o == nil {
		return
	}
	s.active = nil
	o.cancel()
	<-o.done
	zap.L().Info("stream stopped", zap.String("stream", o.sess.ID), zap.Int64("frames", o.frames.Load()))
}

func (o *outbound) snapshot() StreamingSession {
	sess := o.sess
	sess.Frames = o.frames.Load()
	sess.LastSequence = o.lastSeq.Load()
	if at := o.lastAt.Load(); at != 0 {
		sess.LastFrameAt = time.Unix(0, at)
	}
	select {
	case <-o.done:
		sess.Active = false
	default:
	}
	return sess
}

func (s *Streamer) run(ctx context.Context, o *outbound) {
	defer func() {
		close(o.done)
		if s.onFinished != nil {
			s.onFinished(o.snapshot())
		}
	}()
	t := time.NewTimer(0)
	defer t.Stop()
	var seq int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if data, err := s.src.Capture(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Warn("capture failed, frame skipped", zap.String("stream", o.sess.ID), zap.Error(err))
		} else {
			seq++
			o.lastSeq.Store(seq)
			env := protocol.NewStreamFrame(o.sess.ID, seq, data)
			if err := s.out.Send(ctx, o.sess.Target, env, s.obf()); err != nil {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("frame send failed", zap.String("stream", o.sess.ID), zap.Int64("seq", seq), zap.Error(err))
			} else {
				o.frames.Add(1)
				o.lastAt.Store(time.Now().UnixNano())
			}
		}
		t.Reset(o.sess.Interval)
	}
}
