package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"lanhop/pkg/transport"
)

// ALPN protocol negotiated by both ends.
const nextProto = "lanhop"

// how long an accepted connection may take to open its stream, and how long
// a dialer waits for the receiver to finish before tearing the link down
const (
	streamWait = 5 * time.Second
	drainWait  = 3 * time.Second
)

// Transport carries each transfer on a single bidirectional QUIC stream of
// a short-lived connection. Peers are not authenticated: the server uses an
// ephemeral self-signed certificate and the client skips verification.
type Transport struct {
	tlsConf  *tls.Config
	quicConf *quicgo.Config
}

func New() (*Transport, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	return &Transport{
		tlsConf: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{nextProto},
			MinVersion:   tls.VersionTLS13,
		},
		quicConf: &quicgo.Config{MaxIdleTimeout: 30 * time.Second},
	}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	ql := &listener{l: l, newCh: make(chan *stream, 8), closeCh: make(chan struct{})}
	lctx, cancel := context.WithCancel(ctx)
	ql.cancel = cancel
	go ql.acceptLoop(lctx)
	go func() {
		select {
		case <-ctx.Done():
			_ = ql.Close()
		case <-ql.closeCh:
		}
	}()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	tlsClient := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{nextProto},
		MinVersion:         tls.VersionTLS13,
	}
	c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
	if err != nil {
		return nil, err
	}
	s, err := c.OpenStreamSync(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "open stream")
		return nil, err
	}
	return &stream{s: s, c: c, dialed: true}, nil
}

type listener struct {
	l         *quicgo.Listener
	newCh     chan *stream
	closeCh   chan struct{}
	cancel    context.CancelFunc
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
	case s := <-l.newCh:
		return s, nil
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeCh)
		l.cancel()
		l.closeErr = l.l.Close()
	})
	return l.closeErr
}

func (l *listener) acceptLoop(ctx context.Context) {
	for {
		c, err := l.l.Accept(ctx)
		if err != nil {
			return
		}
		go l.acceptStream(ctx, c)
	}
}

func (l *listener) acceptStream(ctx context.Context, c quicgo.Connection) {
	sctx, cancel := context.WithTimeout(ctx, streamWait)
	defer cancel()
	s, err := c.AcceptStream(sctx)
	if err != nil {
		_ = c.CloseWithError(0, "no stream")
		return
	}
	st := &stream{s: s, c: c}
	select {
	case l.newCh <- st:
	case <-l.closeCh:
		_ = st.Close()
	}
}

// stream adapts one QUIC stream plus its owning connection to transport.Conn.
type stream struct {
	s      quicgo.Stream
	c      quicgo.Connection
	dialed bool
	once   sync.Once
}

func (s *stream) Read(p []byte) (int, error)  { return s.s.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.s.Write(p) }
func (s *stream) LocalAddr() net.Addr         { return s.c.LocalAddr() }
func (s *stream) RemoteAddr() net.Addr        { return s.c.RemoteAddr() }

func (s *stream) SetReadDeadline(t time.Time) error { return s.s.SetReadDeadline(t) }

// Close finishes the send side. The dialer then waits for the receiver to
// close its side so queued data is not discarded by the connection close.
func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.s.Close()
		if s.dialed {
			_ = s.s.SetReadDeadline(time.Now().Add(drainWait))
			_, _ = io.Copy(io.Discard, s.s)
		}
		if cerr := s.c.CloseWithError(0, ""); err == nil && !isClosedErr(cerr) {
			err = cerr
		}
	})
	return err
}

func isClosedErr(err error) bool {
	if err == nil {
		return true
	}
	var appErr *quicgo.ApplicationError
	return errors.As(err, &appErr)
}

// selfSignedCert generates a short-lived self-signed TLS certificate.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
