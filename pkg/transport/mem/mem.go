package mem

import (
	"context"
	"errors"
	"net"
	"sync"

	"lanhop/pkg/transport"
)

// ErrNoListener is returned by Dial when nothing listens on the name.
var ErrNoListener = errors.New("mem: no such listener")

// Transport is an in-process transport using net.Pipe. Listener names are
// arbitrary strings, typically "host:port" so the fallback logic of callers
// works unchanged.
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, errors.New("mem: listener already exists")
	}
	l := &listener{name: name, newCh: make(chan net.Conn, 8), closeCh: make(chan struct{})}
	l.onClose = func() {
		t.mu.Lock()
		if t.listeners[name] == l {
			delete(t.listeners, name)
		}
		t.mu.Unlock()
	}
	t.listeners[name] = l
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.closeCh:
		}
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (transport.Conn, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, ErrNoListener
	}
	c1, c2 := net.Pipe()
	srv := &conn{Conn: c1, local: memAddr(name), remote: memAddr("pipe")}
	cli := &conn{Conn: c2, local: memAddr("pipe"), remote: memAddr(name)}
	select {
	case l.newCh <- srv:
	case <-l.closeCh:
		_ = c1.Close()
		_ = c2.Close()
		return nil, ErrNoListener
	case <-ctx.Done():
		_ = c1.Close()
		_ = c2.Close()
		return nil, ctx.Err()
	}
	return cli, nil
}

type listener struct {
	name    string
	newCh   chan net.Conn
	closeCh chan struct{}
	once    sync.Once
	onClose func()
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

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
	l.once.Do(func() {
		close(l.closeCh)
		l.onClose()
	})
	return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type conn struct {
	net.Conn
	local, remote net.Addr
}

func (c *conn) LocalAddr() net.Addr  { return c.local }
func (c *conn) RemoteAddr() net.Addr { return c.remote }
