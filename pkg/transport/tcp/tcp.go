package tcp

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"lanhop/pkg/transport"
)

// Transport is the plain TCP link.
type Transport struct {
	// KeepAlive for dialed and accepted sockets; 0 uses the OS default.
	KeepAlive time.Duration
}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	lc := net.ListenConfig{KeepAlive: t.KeepAlive}
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	tl := &listener{l: l, newCh: make(chan net.Conn), closeCh: make(chan struct{})}
	go tl.acceptLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = tl.Close()
		case <-tl.closeCh:
		}
	}()
	return tl, nil
}

// Dial connects to address. The connect phase is bounded by ctx.
func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	d := &net.Dialer{KeepAlive: t.KeepAlive}
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return c, nil
}

type listener struct {
	l         net.Listener
	newCh     chan net.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, transport.ErrClosed
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeCh)
		l.closeErr = l.l.Close()
	})
	return l.closeErr
}

// accept retry delay bounds after a failed Accept
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// acceptLoop runs until the listener is closed. Accept errors such as
// EMFILE or ECONNABORTED are retried with a growing delay.
func (l *listener) acceptLoop() {
	var delay time.Duration
	for {
		c, err := l.l.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			zap.L().Warn("tcp accept failed, retrying", zap.String("addr", l.l.Addr().String()), zap.Duration("delay", delay), zap.Error(err))
			select {
			case <-time.After(delay):
				continue
			case <-l.closeCh:
				return
			}
		}
		delay = 0
		select {
		case l.newCh <- c:
		case <-l.closeCh:
			_ = c.Close()
			return
		}
	}
}
