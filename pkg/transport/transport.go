package transport

import (
	"context"
	"errors"
	"io"
	"net"
)

// Kind identifies a link type.
type Kind int

const (
	KindUnknown Kind = iota
	KindTCP
	KindQUIC
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindQUIC:
		return "quic"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by Accept once the listener has been closed.
var ErrClosed = errors.New("transport: listener closed")

// Conn carries exactly one transfer. Closing it releases the underlying
// link; for a dialed Conn it also flushes whatever was written.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until a connection arrives, ctx is done or the
	// listener is closed.
	Accept(ctx context.Context) (Conn, error)
	// Addr returns the bound local address.
	Addr() net.Addr
	// Close stops the listener and unblocks Accept. It is idempotent.
	Close() error
}

// Transport dials and listens for one link kind.
type Transport interface {
	Kind() Kind
	Listen(ctx context.Context, address string) (Listener, error)
	Dial(ctx context.Context, address string) (Conn, error)
}

// Port extracts the port of a TCP or UDP listener address; 0 if unknown.
func Port(a net.Addr) int {
	switch v := a.(type) {
	case *net.TCPAddr:
		return v.Port
	case *net.UDPAddr:
		return v.Port
	}
	return 0
}
