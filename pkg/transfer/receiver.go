package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"lanhop/pkg/events"
	"lanhop/pkg/protocol"
	"lanhop/pkg/transport"
)

// Handler consumes one received envelope. It runs on the connection's
// goroutine after the connection has been closed.
type Handler interface {
	HandleEnvelope(ctx context.Context, env *protocol.Envelope)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env *protocol.Envelope)

func (f HandlerFunc) HandleEnvelope(ctx context.Context, env *protocol.Envelope) { f(ctx, env) }

// ReceiverOptions configures a Receiver. Zero values pick defaults.
type ReceiverOptions struct {
	Transport transport.Transport
	// Host to bind; empty binds all interfaces.
	Host string
	// Ports are tried in order; defaults to primary then fallback.
	Ports []int
	Read  protocol.ReadOptions
	// IdleTimeout drops a connection that sends nothing for this long. It
	// is renewed before every read; 0 selects DefaultReadIdle.
	IdleTimeout time.Duration
	Handler     Handler
	Events      events.Sink
}

// DefaultReadIdle is the per-read idle limit of inbound connections.
const DefaultReadIdle = 30 * time.Second

// accept retry delay bounds after a failed Accept
const (
	acceptRetryMin = 5 * time.Millisecond
	acceptRetryMax = time.Second
)

// Receiver accepts one envelope per inbound connection.
type Receiver struct {
	opts ReceiverOptions

	mu     sync.Mutex
	ln     transport.Listener
	ctx    context.Context
	cancel context.CancelFunc
	port   int
	// done is closed when the accept loop exits
	done chan struct{}
	wg   sync.WaitGroup
}

func NewReceiver(opts ReceiverOptions) *Receiver {
	if len(opts.Ports) == 0 {
		opts.Ports = []int{protocol.PrimaryPort, protocol.FallbackPort}
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultReadIdle
	}
	if opts.Handler == nil {
		opts.Handler = HandlerFunc(func(context.Context, *protocol.Envelope) {})
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	return &Receiver{opts: opts}
}

// Start binds the first available port and begins accepting. On failure
// the receiver stays idle and the error wraps ErrBindFailed with each cause.
// Cancelling ctx has the same effect as Stop except that Stop also waits.
func (r *Receiver) Start(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln != nil {
		return r.port, ErrRunning
	}
	if r.opts.Transport == nil {
		return 0, errors.New("transfer: receiver has no transport")
	}

	lctx, cancel := context.WithCancel(ctx)
	var errs []error
	for _, p := range r.opts.Ports {
		addr := net.JoinHostPort(r.opts.Host, strconv.Itoa(p))
		ln, err := r.opts.Transport.Listen(lctx, addr)
		if err != nil {
			zap.L().Warn("bind failed", zap.String("addr", addr), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		port := transport.Port(ln.Addr())
		if port == 0 {
			port = p
		}
		r.ln, r.ctx, r.cancel, r.port = ln, lctx, cancel, port
		r.done = make(chan struct{})
		r.wg.Add(1)
		go r.acceptLoop(lctx, ln, r.done)
		zap.L().Info("receiver listening", zap.String("addr", ln.Addr().String()), zap.String("link", r.opts.Transport.Kind().String()))
		r.opts.Events.Publish(events.Event{Kind: events.Status, Message: "listening on port " + strconv.Itoa(port)})
		return port, nil
	}
	cancel()
	err := fmt.Errorf("%w: %w", ErrBindFailed, errors.Join(errs...))
	r.opts.Events.Publish(events.Event{Kind: events.Error, Message: "failed to start", Err: err})
	return 0, err
}

// Stop cancels the accept loop and in-flight reads, closes the listener and
// waits for running handlers. It is safe to call at any time, more than once.
func (r *Receiver) Stop() {
	r.mu.Lock()
	ln, cancel := r.ln, r.cancel
	r.ln, r.cancel, r.ctx, r.port = nil, nil, nil, 0
	r.mu.Unlock()
	if ln == nil {
		return
	}
	cancel()
	_ = ln.Close()
	r.wg.Wait()
	zap.L().Info("receiver stopped")
	r.opts.Events.Publish(events.Event{Kind: events.Status, Message: "stopped"})
}

// Port returns the bound port, or 0 when idle.
func (r *Receiver) Port() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.port
}

// Running reports whether the receiver is listening.
func (r *Receiver) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil || r.ctx.Err() != nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// acceptLoop exits only when the listener is closed or ctx ends. Any other
// Accept error is logged and retried after a growing delay.
func (r *Receiver) acceptLoop(ctx context.Context, ln transport.Listener, done chan struct{}) {
	defer r.wg.Done()
	defer close(done)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = acceptRetryMin
	bo.MaxInterval = acceptRetryMax
	bo.MaxElapsedTime = 0
	for {
		c, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			delay := bo.NextBackOff()
			zap.L().Warn("accept failed, retrying", zap.String("addr", ln.Addr().String()), zap.Duration("delay", delay), zap.Error(err))
			r.opts.Events.Publish(events.Event{Kind: events.Error, Message: "accept failed", Err: err})
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		bo.Reset()
		r.wg.Add(1)
		go r.handle(ctx, c)
	}
}

func (r *Receiver) handle(ctx context.Context, c transport.Conn) {
	defer r.wg.Done()
	remote := ""
	if a := c.RemoteAddr(); a != nil {
		remote = a.String()
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	env, err := protocol.ReadEnvelope(ctx, idleReader(c, r.opts.IdleTimeout), r.opts.Read)
	stop()
	_ = c.Close()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		zap.L().Warn("inbound transfer rejected", zap.String("remote", remote), zap.Error(err))
		r.opts.Events.Publish(events.Event{Kind: events.Error, Message: "transfer from " + remote + " failed", Err: err})
		return
	}
	env.Remote = remote
	if env.Truncated {
		zap.L().Warn("payload truncated", zap.String("remote", remote), zap.String("name", env.Name), zap.Int64("bytes", env.FileSize))
	}
	zap.L().Debug("envelope received", zap.String("kind", string(env.Kind)), zap.String("name", env.Name), zap.String("from", env.SenderAddress), zap.Int64("bytes", env.FileSize))
	r.opts.Handler.HandleEnvelope(ctx, env)
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// deadlineReader pushes the read deadline forward before each Read, so a
// silent peer fails the read instead of holding the handler.
type deadlineReader struct {
	c    readDeadliner
	r    io.Reader
	idle time.Duration
}

func (d deadlineReader) Read(p []byte) (int, error) {
	if err := d.c.SetReadDeadline(time.Now().Add(d.idle)); err != nil {
		return 0, err
	}
	return d.r.Read(p)
}

// idleReader wraps c with a renewing read deadline when the link supports
// deadlines; otherwise c is returned as is.
func idleReader(c transport.Conn, idle time.Duration) io.Reader {
	if rd, ok := c.(readDeadliner); ok {
		return deadlineReader{c: rd, r: c, idle: idle}
	}
	return c
}
