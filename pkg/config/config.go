// Package config provides YAML-based configuration loading for lanhop.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Net         NetConfig         `mapstructure:"net"`
	Obfuscation ObfuscationConfig `mapstructure:"obfuscation"`
	Stream      StreamConfig      `mapstructure:"stream"`
	Collection  CollectionConfig  `mapstructure:"collection"`
	History     HistoryConfig     `mapstructure:"history"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	Events      EventsConfig      `mapstructure:"events"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ObfuscationConfig holds the shared passphrase. It is not encryption.
type ObfuscationConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Passphrase string `mapstructure:"passphrase"`
}

type StreamConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// IdleTimeout forgets an inbound stream after this long without frames.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// Source is the image file re-read for every outbound frame.
	Source string `mapstructure:"source"`
}

type CollectionConfig struct {
	// IdleTimeout closes an open collection that received no file for this
	// long; 0 keeps sessions open until closed explicitly.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	OutputDir   string        `mapstructure:"output_dir"`
	// KeepClosed is how many closed collections stay in memory; written
	// collections are dropped right away.
	KeepClosed int `mapstructure:"keep_closed"`
	// AutoMaterialize writes a collection to OutputDir when it is closed.
	AutoMaterialize bool `mapstructure:"auto_materialize"`
}

type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Format of stored records: json, cbor or proto.
	Format string        `mapstructure:"format"`
	TTL    time.Duration `mapstructure:"ttl"`
	// MaxBytes caps the memory used by history records.
	MaxBytes uint64 `mapstructure:"max_bytes"`
}

type EventsConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stderr"},
			Development: false,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/lanhop.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Net: NetConfig{
			PrimaryPort:     16741,
			FallbackPort:    6741,
			Link:            "tcp",
			ConnectTimeout:  3 * time.Second,
			ChunkSize:       8 * 1024,
			MaxHeaderBytes:  1 << 20,
			ReadIdleTimeout: 30 * time.Second,
		},
		Stream:     StreamConfig{Interval: time.Second, IdleTimeout: 30 * time.Second},
		Collection: CollectionConfig{IdleTimeout: time.Minute, OutputDir: "./received", KeepClosed: 16, AutoMaterialize: true},
		History:    HistoryConfig{Enabled: true, Format: "cbor", TTL: 24 * time.Hour, MaxBytes: 64 << 20},
		Discovery: DiscoveryConfig{
			Enabled:  false,
			Group:    "239.255.67.41",
			Port:     16742,
			Interval: 5 * time.Second,
			PeerTTL:  20 * time.Second,
		},
		Events: EventsConfig{Buffer: 128},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix LANHOP and `.`/`-` are replaced with `_`.
// Example: LANHOP_NET_PRIMARY_PORT=17000
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LANHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	v.SetDefault("net.host", cfg.Net.Host)
	v.SetDefault("net.primary_port", cfg.Net.PrimaryPort)
	v.SetDefault("net.fallback_port", cfg.Net.FallbackPort)
	v.SetDefault("net.link", cfg.Net.Link)
	v.SetDefault("net.connect_timeout", cfg.Net.ConnectTimeout)
	v.SetDefault("net.chunk_size", cfg.Net.ChunkSize)
	v.SetDefault("net.max_header_bytes", cfg.Net.MaxHeaderBytes)
	v.SetDefault("net.max_payload_bytes", cfg.Net.MaxPayloadBytes)
	v.SetDefault("net.read_idle_timeout", cfg.Net.ReadIdleTimeout)

	v.SetDefault("obfuscation.enabled", cfg.Obfuscation.Enabled)
	v.SetDefault("obfuscation.passphrase", cfg.Obfuscation.Passphrase)

	v.SetDefault("stream.interval", cfg.Stream.Interval)
	v.SetDefault("stream.idle_timeout", cfg.Stream.IdleTimeout)
	v.SetDefault("stream.source", cfg.Stream.Source)

	v.SetDefault("collection.idle_timeout", cfg.Collection.IdleTimeout)
	v.SetDefault("collection.output_dir", cfg.Collection.OutputDir)
	v.SetDefault("collection.auto_materialize", cfg.Collection.AutoMaterialize)
	v.SetDefault("collection.keep_closed", cfg.Collection.KeepClosed)

	v.SetDefault("history.enabled", cfg.History.Enabled)
	v.SetDefault("history.format", cfg.History.Format)
	v.SetDefault("history.ttl", cfg.History.TTL)
	v.SetDefault("history.max_bytes", cfg.History.MaxBytes)

	v.SetDefault("discovery.enabled", cfg.Discovery.Enabled)
	v.SetDefault("discovery.group", cfg.Discovery.Group)
	v.SetDefault("discovery.port", cfg.Discovery.Port)
	v.SetDefault("discovery.interval", cfg.Discovery.Interval)
	v.SetDefault("discovery.peer_ttl", cfg.Discovery.PeerTTL)
	v.SetDefault("discovery.name", cfg.Discovery.Name)
	v.SetDefault("discovery.interface", cfg.Discovery.Interface)

	v.SetDefault("events.buffer", cfg.Events.Buffer)

	// Choose config file
	if path == "" {
		if envPath := os.Getenv("LANHOP_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `lanhop`
		v.SetConfigName("lanhop")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".lanhop"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	c.Net.Link = strings.ToLower(strings.TrimSpace(c.Net.Link))
	switch c.Net.Link {
	case "":
		c.Net.Link = "tcp"
	case "tcp", "quic":
	default:
		return fmt.Errorf("invalid net.link: %q", c.Net.Link)
	}
	if err := checkPort("net.primary_port", c.Net.PrimaryPort, false); err != nil {
		return err
	}
	if err := checkPort("net.fallback_port", c.Net.FallbackPort, true); err != nil {
		return err
	}
	if c.Net.ConnectTimeout <= 0 {
		c.Net.ConnectTimeout = 3 * time.Second
	}

	if c.Obfuscation.Enabled && c.Obfuscation.Passphrase == "" {
		return errors.New("obfuscation.enabled requires obfuscation.passphrase")
	}

	c.History.Format = strings.ToLower(strings.TrimSpace(c.History.Format))
	switch c.History.Format {
	case "":
		c.History.Format = "cbor"
	case "json", "cbor", "proto":
	default:
		return fmt.Errorf("invalid history.format: %q", c.History.Format)
	}

	if c.Discovery.Enabled {
		if err := checkPort("discovery.port", c.Discovery.Port, false); err != nil {
			return err
		}
		if c.Discovery.Interval <= 0 {
			c.Discovery.Interval = 5 * time.Second
		}
		if c.Discovery.PeerTTL < c.Discovery.Interval {
			c.Discovery.PeerTTL = 4 * c.Discovery.Interval
		}
	}
	if c.Collection.AutoMaterialize && strings.TrimSpace(c.Collection.OutputDir) == "" {
		return errors.New("collection.auto_materialize requires collection.output_dir")
	}
	return nil
}

func checkPort(key string, p int, zeroOK bool) error {
	if p == 0 && zeroOK {
		return nil
	}
	if p < 1 || p > 65535 {
		return fmt.Errorf("invalid %s: %d", key, p)
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
