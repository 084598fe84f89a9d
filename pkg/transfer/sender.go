package transfer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"lanhop/pkg/address"
	"lanhop/pkg/obfuscate"
	"lanhop/pkg/protocol"
	"lanhop/pkg/transport"
)

// DefaultConnectTimeout bounds each per-port connection attempt.
const DefaultConnectTimeout = 3 * time.Second

// SenderOptions configures a Sender. Zero values pick defaults.
type SenderOptions struct {
	Transport transport.Transport
	// Resolver yields this host's IPv4; defaults to address.LocalIPv4.
	Resolver address.Resolver
	// Ports are tried in order; defaults to primary then fallback.
	Ports          []int
	ConnectTimeout time.Duration
}

// Sender delivers envelopes to word addresses, one connection per envelope.
type Sender struct {
	opts SenderOptions
}

func NewSender(opts SenderOptions) *Sender {
	if opts.Resolver == nil {
		opts.Resolver = address.LocalIPv4
	}
	if len(opts.Ports) == 0 {
		opts.Ports = []int{protocol.PrimaryPort, protocol.FallbackPort}
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	return &Sender{opts: opts}
}

// Send parses target, fills omitted octets from the local address, applies
// obfuscation when active and writes env over the first port that accepts a
// connection. The frame is fully built before dialling, so a failure before
// connect never writes anything.
func (s *Sender) Send(ctx context.Context, target string, env protocol.Envelope, obf obfuscate.Settings) error {
	if s.opts.Transport == nil {
		return errors.New("transfer: sender has no transport")
	}
	a := address.Parse(target)
	if !a.Valid() {
		return &AddressError{Input: target, Reason: "not a known word or octet sequence"}
	}
	if err := obf.Validate(); err != nil {
		return err
	}
	local, err := s.opts.Resolver()
	if err != nil {
		return fmt.Errorf("resolve local address: %w", err)
	}
	ip, err := a.Resolve(local)
	if err != nil {
		return &AddressError{Input: target, Reason: "cannot resolve", Err: err}
	}

	env.SenderAddress = address.FromIP(local)
	prepare(&env, obf)
	frame, err := env.Frame()
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Kind, err)
	}

	conn, err := s.dial(ctx, target, ip)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := frame.WriteTo(conn); err != nil {
		return fmt.Errorf("write to %s: %w", conn.RemoteAddr(), err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close %s: %w", conn.RemoteAddr(), err)
	}
	zap.L().Debug("envelope sent", zap.String("kind", string(env.Kind)), zap.String("target", target), zap.String("ip", ip.String()), zap.Int64("bytes", frame.Len()))
	return nil
}

// prepare stamps the obfuscation fields and transforms the content.
func prepare(env *protocol.Envelope, obf obfuscate.Settings) {
	if !obf.Active() {
		env.Obfuscated = false
		env.ObfuscationCode = ""
		return
	}
	env.Obfuscated = true
	env.ObfuscationCode = obf.Passphrase
	if env.Kind.Binary() {
		env.Payload = obfuscate.Transform(env.Payload, obf.Passphrase)
	} else {
		env.Text = obfuscate.TransformText(env.Text, obf.Passphrase)
	}
}

func (s *Sender) dial(ctx context.Context, target string, ip net.IP) (transport.Conn, error) {
	derr := &DialError{Target: target}
	for _, p := range s.opts.Ports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(p))
		dctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
		conn, err := s.opts.Transport.Dial(dctx, addr)
		cancel()
		if err == nil {
			return conn, nil
		}
		zap.L().Debug("connect failed", zap.String("addr", addr), zap.Error(err))
		derr.Attempts = append(derr.Attempts, DialAttempt{Addr: addr, Err: err})
	}
	return nil, derr
}
