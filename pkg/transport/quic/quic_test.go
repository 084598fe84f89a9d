package quic

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

func TestQUICOneShot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tr, err := New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	payload := bytes.Repeat([]byte("lanhop"), 10000)
	got := make(chan []byte, 1)
	go func() {
		c, err := l.Accept(ctx)
		if err != nil {
			got <- nil
			return
		}
		b, _ := io.ReadAll(c)
		_ = c.Close()
		got <- b
	}()

	c, err := tr.Dial(ctx, l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := c.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = c.Close()

	select {
	case b := <-got:
		if !bytes.Equal(b, payload) {
			t.Fatalf("received %d bytes, want %d", len(b), len(payload))
		}
	case <-ctx.Done():
		t.Fatalf("timeout")
	}
}
