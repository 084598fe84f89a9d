// Package discovery announces this host on the LAN by its word address and
// keeps a table of peers heard from recently.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"lanhop/pkg/address"
	"lanhop/pkg/memkv"
	"lanhop/pkg/protocol/codec"
)

const (
	DefaultGroup    = "239.255.67.41"
	DefaultPort     = 16742
	DefaultInterval = 5 * time.Second

	msgAnnounce = "AN"
	msgQuery    = "QR"
	msgBye      = "BY"

	peerPrefix = "peer/"
	maxBeacon  = 2048
)

// Beacon is the datagram exchanged on the multicast group.
type Beacon struct {
	Type    string `json:"t"`
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Address string `json:"addr,omitempty"`
	Port    int    `json:"port,omitempty"`
	Version int    `json:"v"`
}

// Peer is one host heard on the group.
type Peer struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"addr"`
	IP       string    `json:"ip"`
	Port     int       `json:"port"`
	LastSeen time.Time `json:"seen"`
}

type Options struct {
	Group    string
	Port     int
	Interval time.Duration
	// PeerTTL drops peers not heard from for this long; defaults to 4 intervals.
	PeerTTL time.Duration
	Name    string
	// Interface names the NIC to join on; empty joins every multicast-capable one.
	Interface string
	// ServicePort is the transfer port advertised to peers.
	ServicePort int
	Resolver    address.Resolver
}

func (o Options) withDefaults() Options {
	if o.Group == "" {
		o.Group = DefaultGroup
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.PeerTTL <= 0 {
		o.PeerTTL = 4 * o.Interval
	}
	if o.Name == "" {
		o.Name, _ = os.Hostname()
	}
	if o.Resolver == nil {
		o.Resolver = address.LocalIPv4
	}
	return o
}

// Service runs the beacon.
type Service struct {
	opts  Options
	id    string
	kv    *memkv.Store
	codec codec.Codec
	group *net.UDPAddr

	mu     sync.Mutex
	conn   *net.UDPConn
	pc     *ipv4.PacketConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// queries asks the run loop for an immediate announce; pending requests coalesce
	queries chan struct{}
}

func New(kv *memkv.Store, opts Options) (*Service, error) {
	opts = opts.withDefaults()
	ip := net.ParseIP(opts.Group)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("discovery: %q is not an IPv4 multicast group", opts.Group)
	}
	return &Service{
		opts:    opts,
		id:      uuid.NewString(),
		kv:      kv,
		codec:   codec.JSON(),
		group:   &net.UDPAddr{IP: ip, Port: opts.Port},
		queries: make(chan struct{}, 1),
	}, nil
}

// ID is the random identity announced by this service.
func (s *Service) ID() string { return s.id }

// Start binds the group port and begins announcing. Joining the group is
// retried with backoff when no interface is ready yet.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return errors.New("discovery: already started")
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.opts.Port})
	if err != nil {
		return fmt.Errorf("discovery: listen: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)
	_ = pc.SetMulticastTTL(4)
	_ = pc.SetMulticastLoopback(true)

	lctx, cancel := context.WithCancel(ctx)
	s.conn, s.pc, s.cancel = conn, pc, cancel
	s.wg.Add(2)
	go s.readLoop()
	go s.run(lctx)
	zap.L().Info("discovery started", zap.String("group", s.group.String()), zap.String("id", s.id))
	return nil
}

// Stop says goodbye, closes the socket and waits for the loops.
func (s *Service) Stop() {
	s.mu.Lock()
	conn, cancel := s.conn, s.cancel
	s.conn, s.cancel = nil, nil
	s.mu.Unlock()
	if conn == nil {
		return
	}
	cancel()
	s.send(Beacon{Type: msgBye, ID: s.id, Version: 1})
	_ = conn.Close()
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0
	joinTicker := backoff.NewTicker(bo)
	defer joinTicker.Stop()
	for joined := false; !joined; {
		select {
		case <-ctx.Done():
			return
		case <-joinTicker.C:
		}
		if err := s.join(); err != nil {
			zap.L().Warn("multicast join failed, retrying", zap.Error(err))
			continue
		}
		joined = true
	}
	joinTicker.Stop()

	s.send(Beacon{Type: msgQuery, ID: s.id, Version: 1})
	s.announce()
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.announce()
		case <-s.queries:
			s.announce()
		}
	}
}

func (s *Service) join() error {
	var ifaces []net.Interface
	if s.opts.Interface != "" {
		ifi, err := net.InterfaceByName(s.opts.Interface)
		if err != nil {
			return err
		}
		ifaces = []net.Interface{*ifi}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return err
		}
		for _, ifi := range all {
			if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
				ifaces = append(ifaces, ifi)
			}
		}
	}
	var errs []error
	joined := 0
	for i := range ifaces {
		if err := s.pc.JoinGroup(&ifaces[i], &net.UDPAddr{IP: s.group.IP}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ifaces[i].Name, err))
			continue
		}
		joined++
	}
	if joined == 0 {
		if len(errs) == 0 {
			return errors.New("no multicast interface up")
		}
		return errors.Join(errs...)
	}
	return nil
}

func (s *Service) announce() {
	b := Beacon{Type: msgAnnounce, ID: s.id, Name: s.opts.Name, Port: s.opts.ServicePort, Version: 1}
	if ip, err := s.opts.Resolver(); err == nil {
		b.Address = address.FromIP(ip)
	}
	s.send(b)
}

func (s *Service) send(b Beacon) {
	data, err := s.codec.Marshal(&b)
	if err != nil {
		return
	}
	if _, err := s.pc.WriteTo(data, nil, s.group); err != nil {
		zap.L().Debug("beacon send failed", zap.Error(err))
	}
}

func (s *Service) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, maxBeacon)
	for {
		n, _, src, err := s.pc.ReadFrom(buf)
		if err != nil {
			return
		}
		ua, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}
		var b Beacon
		if err := s.codec.Unmarshal(buf[:n], &b); err != nil {
			zap.L().Debug("bad beacon", zap.String("from", ua.String()), zap.Error(err))
			continue
		}
		s.handle(b, ua.IP)
	}
}

// handle applies one beacon to the peer table.
func (s *Service) handle(b Beacon, src net.IP) {
	if b.ID == "" || b.ID == s.id {
		return
	}
	switch b.Type {
	case msgBye:
		s.kv.Delete(peerPrefix + b.ID)
	case msgAnnounce, msgQuery:
		p := Peer{ID: b.ID, Name: b.Name, Address: b.Address, IP: src.String(), Port: b.Port, LastSeen: time.Now()}
		if p.Address == "" {
			p.Address = address.FromIP(src)
		}
		if p.Name == "" {
			p.Name = p.IP
		}
		data, err := s.codec.Marshal(&p)
		if err != nil {
			return
		}
		if s.kv.Set(peerPrefix+b.ID, data, s.opts.PeerTTL) {
			zap.L().Info("peer discovered", zap.String("name", p.Name), zap.String("addr", p.Address), zap.String("ip", p.IP))
		}
		if b.Type == msgQuery {
			select {
			case s.queries <- struct{}{}:
			default:
			}
		}
	}
}

// Peers lists live peers ordered by name.
func (s *Service) Peers() []Peer {
	var out []Peer
	s.kv.Range(peerPrefix, func(_ string, v []byte) bool {
		var p Peer
		if s.codec.Unmarshal(v, &p) == nil {
			out = append(out, p)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Find returns the peer whose name, word address or IP equals key.
func (s *Service) Find(key string) (Peer, bool) {
	for _, p := range s.Peers() {
		if p.Name == key || p.Address == key || p.IP == key {
			return p, true
		}
	}
	return Peer{}, false
}
