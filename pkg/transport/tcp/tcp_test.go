package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"lanhop/pkg/transport"
)

func TestTCPOneShot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr := New()
	l, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	port := transport.Port(l.Addr())
	if port == 0 {
		t.Fatalf("no port in %v", l.Addr())
	}

	got := make(chan []byte, 1)
	go func() {
		c, err := l.Accept(ctx)
		if err != nil {
			got <- nil
			return
		}
		defer c.Close()
		b, _ := io.ReadAll(c)
		got <- b
	}()

	c, err := tr.Dial(ctx, l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := c.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = c.Close()

	if b := <-got; string(b) != "hello" {
		t.Fatalf("got %q", b)
	}
}

func TestListenerCloseUnblocksAccept(t *testing.T) {
	ctx := context.Background()
	l, err := New().Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := l.Accept(ctx)
		done <- err
	}()
	_ = l.Close()
	_ = l.Close()
	select {
	case err := <-done:
		if !errors.Is(err, transport.ErrClosed) {
			t.Fatalf("want ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("accept not unblocked")
	}
}

func TestListenerClosedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l, err := New().Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		dctx, dcancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		c, err := New().Dial(dctx, addr)
		dcancel()
		if err != nil {
			return
		}
		_ = c.Close()
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("listener still accepting after cancel")
}

// flakyListener fails its first Accept calls the way an exhausted fd table does.
type flakyListener struct {
	net.Listener
	fails atomic.Int32
}

func (f *flakyListener) Accept() (net.Conn, error) {
	if f.fails.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: errors.New("too many open files")}
	}
	return f.Listener.Accept()
}

func TestAcceptErrorDoesNotCloseListener(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fl := &flakyListener{Listener: raw}
	fl.fails.Store(3)
	l := &listener{l: fl, newCh: make(chan net.Conn), closeCh: make(chan struct{})}
	go l.acceptLoop()
	defer l.Close()

	c, err := New().Dial(ctx, raw.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	sc, err := l.Accept(ctx)
	if err != nil {
		t.Fatalf("accept after transient errors: %v", err)
	}
	_ = sc.Close()
	if n := fl.fails.Load(); n >= 0 {
		t.Fatalf("accept errors not consumed: %d left", n)
	}
}
