package node

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanhop/pkg/address"
	"lanhop/pkg/capture"
	"lanhop/pkg/config"
	"lanhop/pkg/events"
	"lanhop/pkg/protocol"
	"lanhop/pkg/transfer"
	"lanhop/pkg/transport/mem"
)

// newPair starts two nodes on a shared in-memory link: a at 127.0.0.2
// ("2") and b at 127.0.0.3 ("3").
func newPair(t *testing.T, tune func(a, b *config.Config), aOpts ...Option) (*Node, *Node) {
	t.Helper()
	link := mem.New()
	ca, cb := config.Default(), config.Default()
	ca.Net.Host, cb.Net.Host = "127.0.0.2", "127.0.0.3"
	cb.Collection.OutputDir = t.TempDir()
	if tune != nil {
		tune(ca, cb)
	}
	start := func(cfg *config.Config, last byte, opts ...Option) *Node {
		opts = append(opts, WithTransport(link), WithResolver(address.Static(net.IPv4(127, 0, 0, last))))
		n, err := New(cfg, opts...)
		require.NoError(t, err)
		_, err = n.Start(context.Background())
		require.NoError(t, err)
		t.Cleanup(n.Close)
		return n
	}
	return start(ca, 2, aOpts...), start(cb, 3)
}

func nextReceived(t *testing.T, n *Node) *protocol.Envelope {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-n.Events().C():
			if ev.Kind == events.Received {
				return ev.Envelope
			}
		case <-timeout:
			t.Fatalf("no envelope received")
			return nil
		}
	}
}

func TestNodeTextAndHistory(t *testing.T) {
	a, b := newPair(t, nil)
	require.NoError(t, a.Send(context.Background(), "3", protocol.NewText("hello")))

	env := nextReceived(t, b)
	assert.Equal(t, "hello", env.Text)
	want, _ := a.Address()
	assert.Equal(t, want, env.SenderAddress)

	recs := b.History().List()
	require.Len(t, recs, 1)
	assert.Equal(t, "text", recs[0].Kind)
	assert.Equal(t, want, recs[0].Sender)
}

func TestNodeObfuscationRoundTrip(t *testing.T) {
	a, b := newPair(t, func(ca, cb *config.Config) {
		ca.Obfuscation.Enabled, ca.Obfuscation.Passphrase = true, "pw"
		cb.Obfuscation.Passphrase = "pw"
	})
	data := []byte("payload bytes")
	require.NoError(t, a.Send(context.Background(), "3", protocol.NewFile("f.bin", data)))
	require.NoError(t, a.Send(context.Background(), "3", protocol.NewLink("https://example.org")))

	got := map[protocol.Kind]*protocol.Envelope{}
	for i := 0; i < 2; i++ {
		env := nextReceived(t, b)
		got[env.Kind] = env
	}
	assert.True(t, got[protocol.KindFile].Obfuscated)
	assert.False(t, got[protocol.KindFile].Undecryptable)
	assert.Equal(t, data, got[protocol.KindFile].Payload)
	assert.Equal(t, "https://example.org", got[protocol.KindLink].Text)
}

func TestNodeCodeMismatchKeepsContent(t *testing.T) {
	a, b := newPair(t, func(ca, cb *config.Config) {
		ca.Obfuscation.Enabled, ca.Obfuscation.Passphrase = true, "pw"
		cb.Obfuscation.Passphrase = "other"
	})
	data := []byte("payload bytes")
	require.NoError(t, a.Send(context.Background(), "3", protocol.NewFile("f.bin", data)))

	env := nextReceived(t, b)
	assert.True(t, env.Undecryptable)
	assert.Len(t, env.Payload, len(data))
	assert.NotEqual(t, data, env.Payload)
	assert.True(t, b.History().List()[0].Undecryptable)
}

func TestNodeCollectionMaterializesOnClose(t *testing.T) {
	a, b := newPair(t, func(_, cb *config.Config) { cb.Collection.AutoMaterialize = true })
	files := []transfer.File{{Name: "a.txt", Data: []byte("a")}, {Name: "b.txt", Data: []byte("bb")}}
	_, sent, err := a.SendCollection(context.Background(), "3", files)
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	nextReceived(t, b)
	nextReceived(t, b)

	sessions := b.Collections().List()
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].Files, 2)
	require.NoError(t, b.CloseCollection(sessions[0].ID))

	matches, err := filepath.Glob(filepath.Join(b.cfg.Collection.OutputDir, "*", "b.txt"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	content, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "bb", string(content))
	assert.Empty(t, b.Collections().List(), "written collection still held in memory")
}

func TestNodeClosesIdleCollections(t *testing.T) {
	a, b := newPair(t, func(_, cb *config.Config) { cb.Collection.IdleTimeout = 200 * time.Millisecond })
	_, _, err := a.SendCollection(context.Background(), "3", []transfer.File{{Name: "late.txt", Data: []byte("z")}})
	require.NoError(t, err)
	nextReceived(t, b)

	assert.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(b.cfg.Collection.OutputDir, "*", "late.txt"))
		return len(matches) == 1 && len(b.Collections().List()) == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestNodeStreamFramesTracked(t *testing.T) {
	frame := []byte{0x89, 'P', 'N', 'G'}
	src := capture.Func(func(context.Context) ([]byte, error) { return frame, nil })
	a, b := newPair(t, nil, WithCapture(src))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id, err := a.StartStream(ctx, "3", 250*time.Millisecond)
	require.NoError(t, err)

	env := nextReceived(t, b)
	assert.Equal(t, protocol.KindStreamFrame, env.Kind)
	assert.Equal(t, id, env.StreamID)
	assert.Equal(t, frame, env.Payload)

	s, ok := b.Tracker().Get(id)
	require.True(t, ok)
	assert.GreaterOrEqual(t, s.Frames, int64(1))
	a.StopStream()
}

func TestNodeStreamWithoutCapture(t *testing.T) {
	a, _ := newPair(t, nil)
	_, err := a.StartStream(context.Background(), "3", 0)
	assert.ErrorIs(t, err, ErrNoCapture)
}
