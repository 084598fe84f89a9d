// Package node assembles a running lanhop peer from configuration: the
// receiver and sender, session registries, history and discovery.
package node

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"lanhop/pkg/address"
	"lanhop/pkg/capture"
	"lanhop/pkg/config"
	"lanhop/pkg/discovery"
	"lanhop/pkg/events"
	"lanhop/pkg/history"
	"lanhop/pkg/memkv"
	"lanhop/pkg/obfuscate"
	"lanhop/pkg/protocol"
	"lanhop/pkg/session"
	"lanhop/pkg/transfer"
	"lanhop/pkg/transport"
	"lanhop/pkg/transport/links"
)

// Node is one lanhop peer.
type Node struct {
	cfg *config.Config
	kv  *memkv.Store

	// historyKV carries the history byte budget; kv is unbounded
	historyKV *memkv.Store

	transport   transport.Transport
	resolver    address.Resolver
	receiver    *transfer.Receiver
	sender      *transfer.Sender
	streamer    *session.Streamer
	tracker     *session.StreamTracker
	collections *session.Collections
	history     *history.Store
	discovery   *discovery.Service
	bus         *events.Bus
	sink        events.Sink

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*buildOpts)

type buildOpts struct {
	transport transport.Transport
	resolver  address.Resolver
	source    capture.Source
	sinks     []events.Sink
}

// WithTransport overrides the link selected by net.link.
func WithTransport(t transport.Transport) Option { return func(o *buildOpts) { o.transport = t } }

// WithResolver overrides local IPv4 detection.
func WithResolver(r address.Resolver) Option { return func(o *buildOpts) { o.resolver = r } }

// WithCapture sets the image source for outbound streams.
func WithCapture(src capture.Source) Option { return func(o *buildOpts) { o.source = src } }

// WithSink adds a sink that sees every event next to the bus.
func WithSink(s events.Sink) Option { return func(o *buildOpts) { o.sinks = append(o.sinks, s) } }

func New(cfg *config.Config, opts ...Option) (*Node, error) {
	var bo buildOpts
	for _, o := range opts {
		o(&bo)
	}
	if bo.transport == nil {
		t, err := links.NewByKind(cfg.Net.Link)
		if err != nil {
			return nil, err
		}
		bo.transport = t
	}
	if bo.resolver == nil {
		bo.resolver = address.LocalIPv4
	}
	if bo.source == nil && cfg.Stream.Source != "" {
		bo.source = capture.FileSource{Path: cfg.Stream.Source}
	}

	n := &Node{
		cfg:       cfg,
		kv:        memkv.New(memkv.Options{}),
		transport: bo.transport,
		resolver:  bo.resolver,
		bus:       events.NewBus(cfg.Events.Buffer),
	}
	n.sink = append(events.Funcs{n.bus}, bo.sinks...)

	n.sender = transfer.NewSender(transfer.SenderOptions{
		Transport:      n.transport,
		Resolver:       n.resolver,
		Ports:          cfg.Net.Ports(),
		ConnectTimeout: cfg.Net.ConnectTimeout,
	})
	n.receiver = transfer.NewReceiver(transfer.ReceiverOptions{
		Transport: n.transport,
		Host:      cfg.Net.Host,
		Ports:     cfg.Net.Ports(),
		Read: protocol.ReadOptions{
			ChunkSize:       cfg.Net.ChunkSize,
			MaxHeaderBytes:  cfg.Net.MaxHeaderBytes,
			MaxPayloadBytes: cfg.Net.MaxPayloadBytes,
		},
		IdleTimeout: cfg.Net.ReadIdleTimeout,
		Handler:     n,
		Events:      n.sink,
	})
	n.tracker = session.NewStreamTracker(n.kv, cfg.Stream.IdleTimeout)
	n.collections = session.NewCollections(cfg.Collection.IdleTimeout)
	n.collections.KeepClosed(cfg.Collection.KeepClosed)
	if cfg.Collection.AutoMaterialize {
		n.collections.OnClose(n.materialize)
	}
	if bo.source != nil {
		n.streamer = session.NewStreamer(bo.source, n.sender,
			session.WithObfuscation(n.Obfuscation),
			session.OnFinished(func(s session.StreamingSession) {
				n.sink.Publish(events.Event{Kind: events.Status, Message: fmt.Sprintf("stream %s ended after %d frames", s.ID, s.Frames)})
			}))
	}
	if cfg.History.Enabled {
		n.historyKV = memkv.New(memkv.Options{MaxBytes: cfg.History.MaxBytes})
		h, err := history.New(n.historyKV, cfg.History.Format, cfg.History.TTL)
		if err != nil {
			n.closeStores()
			return nil, err
		}
		n.history = h
	}
	if cfg.Discovery.Enabled {
		d, err := discovery.New(n.kv, n.discoveryOptions(0))
		if err != nil {
			n.closeStores()
			return nil, err
		}
		n.discovery = d
	}
	return n, nil
}

func (n *Node) discoveryOptions(port int) discovery.Options {
	d := n.cfg.Discovery
	return discovery.Options{
		Group:       d.Group,
		Port:        d.Port,
		Interval:    d.Interval,
		PeerTTL:     d.PeerTTL,
		Name:        d.Name,
		Interface:   d.Interface,
		ServicePort: port,
		Resolver:    n.resolver,
	}
}

// Start begins receiving and, when enabled, announcing. It returns the
// bound transfer port.
func (n *Node) Start(ctx context.Context) (int, error) {
	port, err := n.receiver.Start(ctx)
	if err != nil {
		return 0, err
	}
	if n.discovery != nil {
		// rebuilt so the beacon advertises the port actually bound
		d, err := discovery.New(n.kv, n.discoveryOptions(port))
		if err == nil {
			n.discovery = d
			err = d.Start(ctx)
		}
		if err != nil {
			zap.L().Warn("discovery disabled", zap.Error(err))
			n.sink.Publish(events.Event{Kind: events.Error, Message: "discovery unavailable", Err: err})
		}
	}
	if idle := n.cfg.Collection.IdleTimeout; idle > 0 {
		sctx, cancel := context.WithCancel(ctx)
		n.cancel = cancel
		n.wg.Add(1)
		go n.sweepCollections(sctx, max(idle/2, time.Second))
	}
	if addr, err := address.Local(n.resolver); err == nil {
		zap.L().Info("node ready", zap.String("address", addr), zap.Int("port", port))
	}
	return port, nil
}

// Close stops every component and releases the stores.
func (n *Node) Close() {
	if n.streamer != nil {
		n.streamer.StopStream()
	}
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
	n.receiver.Stop()
	if n.discovery != nil {
		n.discovery.Stop()
	}
	n.bus.Close()
	n.closeStores()
}

func (n *Node) closeStores() {
	n.kv.Close()
	if n.historyKV != nil {
		n.historyKV.Close()
	}
}

// Obfuscation returns the configured obfuscation settings.
func (n *Node) Obfuscation() obfuscate.Settings {
	return obfuscate.Settings{Enabled: n.cfg.Obfuscation.Enabled, Passphrase: n.cfg.Obfuscation.Passphrase}
}

// Events is the bus the host application reads notifications from.
func (n *Node) Events() *events.Bus { return n.bus }

func (n *Node) Port() int                           { return n.receiver.Port() }
func (n *Node) Running() bool                       { return n.receiver.Running() }
func (n *Node) Tracker() *session.StreamTracker     { return n.tracker }
func (n *Node) Collections() *session.Collections   { return n.collections }
func (n *Node) History() *history.Store             { return n.history }
func (n *Node) Discovery() *discovery.Service       { return n.discovery }
func (n *Node) Address() (string, error)            { return address.Local(n.resolver) }
func (n *Node) Sender() *transfer.Sender            { return n.sender }
func (n *Node) Streamer() (*session.Streamer, bool) { return n.streamer, n.streamer != nil }

// Send delivers env to target using the configured obfuscation.
func (n *Node) Send(ctx context.Context, target string, env protocol.Envelope) error {
	return n.sender.Send(ctx, target, env, n.Obfuscation())
}

// SendToMany delivers env to every target and reports how many succeeded.
func (n *Node) SendToMany(ctx context.Context, targets []string, env protocol.Envelope) (int, error) {
	return n.sender.SendToMany(ctx, targets, env, n.Obfuscation())
}

// SendCollection sends files to target as one collection and returns its id.
func (n *Node) SendCollection(ctx context.Context, target string, files []transfer.File) (string, int, error) {
	return n.sender.SendCollection(ctx, target, files, n.Obfuscation())
}

// StopStream ends the outbound stream, if any.
func (n *Node) StopStream() {
	if n.streamer != nil {
		n.streamer.StopStream()
	}
}

// ErrNoCapture is returned by StartStream when no image source is configured.
var ErrNoCapture = errors.New("node: no capture source configured")

// StartStream starts streaming to target; interval 0 uses stream.interval.
func (n *Node) StartStream(ctx context.Context, target string, interval time.Duration) (string, error) {
	if n.streamer == nil {
		return "", ErrNoCapture
	}
	if interval == 0 {
		interval = n.cfg.Stream.Interval
	}
	id, err := n.streamer.StartStream(ctx, target, interval)
	if err == nil {
		n.sink.Publish(events.Event{Kind: events.Status, Message: "stream " + id + " started to " + target})
	}
	return id, err
}

// CloseCollection closes a received collection. With auto-materialize on,
// its files are written to the output directory.
func (n *Node) CloseCollection(id string) error {
	return n.collections.CloseSession(id)
}

func (n *Node) materialize(s session.CollectionSession) {
	dir := filepath.Join(n.cfg.Collection.OutputDir, s.StartedAt.Format("20060102-150405")+"-"+s.ID[:8])
	written, err := session.Materialize(s, dir)
	if err != nil {
		zap.L().Warn("collection partially written", zap.String("collection", s.ID), zap.Int("written", written), zap.Error(err))
		n.sink.Publish(events.Event{Kind: events.Error, Message: "collection " + s.ID + " partially written", Err: err})
		return
	}
	n.collections.Remove(s.ID)
	n.sink.Publish(events.Event{Kind: events.Status, Message: fmt.Sprintf("collection %s: %d file(s) saved to %s", s.ID, written, dir)})
}

// sweepCollections closes idle collections until ctx ends.
func (n *Node) sweepCollections(ctx context.Context, every time.Duration) {
	defer n.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.collections.CloseIdle()
		}
	}
}
