// Package links builds transports by configured kind name.
package links

import (
	"fmt"
	"strings"

	"lanhop/pkg/transport"
	"lanhop/pkg/transport/mem"
	"lanhop/pkg/transport/quic"
	"lanhop/pkg/transport/tcp"
)

// NewByKind returns a fresh transport for kind ("tcp", "quic" or "mem").
// An empty kind selects tcp.
func NewByKind(kind string) (transport.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "tcp":
		return tcp.New(), nil
	case "quic":
		t, err := quic.New()
		if err != nil {
			return nil, err
		}
		return t, nil
	case "mem":
		return mem.New(), nil
	default:
		return nil, fmt.Errorf("unknown link kind %q", kind)
	}
}
