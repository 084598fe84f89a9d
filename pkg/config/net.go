package config

import "time"

// NetConfig controls the listener and the sender.
type NetConfig struct {
	// Host to bind; empty binds every interface.
	Host         string `mapstructure:"host"`
	PrimaryPort  int    `mapstructure:"primary_port"`
	FallbackPort int    `mapstructure:"fallback_port"`
	// Link selects the transport: tcp (default) or quic.
	Link           string        `mapstructure:"link"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	// MaxPayloadBytes rejects larger inbound payloads; 0 disables the check.
	MaxPayloadBytes int64 `mapstructure:"max_payload_bytes"`
	// ReadIdleTimeout drops an inbound connection that stays silent this long.
	ReadIdleTimeout time.Duration `mapstructure:"read_idle_timeout"`
}

// Ports returns the ports to try, in order, without duplicates.
func (n NetConfig) Ports() []int {
	if n.FallbackPort == 0 || n.FallbackPort == n.PrimaryPort {
		return []int{n.PrimaryPort}
	}
	return []int{n.PrimaryPort, n.FallbackPort}
}

// DiscoveryConfig controls the multicast presence beacon.
type DiscoveryConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Group    string        `mapstructure:"group"`
	Port     int           `mapstructure:"port"`
	Interval time.Duration `mapstructure:"interval"`
	// PeerTTL is how long a peer stays listed after its last beacon.
	PeerTTL time.Duration `mapstructure:"peer_ttl"`
	// Name is announced alongside the address; defaults to the hostname.
	Name string `mapstructure:"name"`
	// Interface restricts the beacon to one network interface.
	Interface string `mapstructure:"interface"`
}
