// Package config defines the configuration for the lobwatch dashboard state
// layer and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LOBWATCH_* environment variables.
type Config struct {
	Backend  BackendConfig `toml:"backend"`
	Stream   StreamConfig  `toml:"stream"`
	Control  ControlConfig `toml:"control"`
	Redis    RedisConfig   `toml:"redis"`
	Kafka    KafkaConfig   `toml:"kafka"`
	Server   ServerConfig  `toml:"server"`
	LogLevel string        `toml:"log_level"`
}

// BackendConfig locates the analytics backend.
type BackendConfig struct {
	// HTTP is the REST root, e.g. "http://localhost:8000".
	HTTP string `toml:"http"`
	// WS is the snapshot stream endpoint. When empty it is derived from HTTP
	// by swapping the scheme to ws/wss and appending "/ws".
	WS string `toml:"ws"`
}

// Stream source names.
const (
	SourceWS    = "ws"
	SourceRedis = "redis"
	SourceKafka = "kafka"
)

// StreamConfig selects and tunes the frame transport.
type StreamConfig struct {
	Source               string   `toml:"source"`
	Reconnect            bool     `toml:"reconnect"`
	ReconnectBaseDelay   duration `toml:"reconnect_base_delay"`
	ReconnectMaxDelay    duration `toml:"reconnect_max_delay"`
	ReconnectMaxAttempts int      `toml:"reconnect_max_attempts"`
	HandshakeTimeout     duration `toml:"handshake_timeout"`
	MaxFrameBytes        int64    `toml:"max_frame_bytes"`
}

// ControlConfig tunes replay control requests.
type ControlConfig struct {
	Timeout duration `toml:"timeout"`
}

// RedisConfig holds Redis connection parameters for the redis stream source
// and the optional frame mirror.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Channel    string `toml:"channel"`

	// MirrorChannel, when set, republishes every inbound frame there.
	MirrorChannel string `toml:"mirror_channel"`
}

// KafkaConfig holds Kafka parameters for the kafka stream source.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	GroupID string   `toml:"group_id"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the local HTTP/WebSocket surface parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// APIKey, when set, is required on every route except health and
	// metrics.
	APIKey string `toml:"api_key"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Backend: BackendConfig{
			HTTP: "http://localhost:8000",
		},
		Stream: StreamConfig{
			Source:               SourceWS,
			Reconnect:            false,
			ReconnectBaseDelay:   duration{2 * time.Second},
			ReconnectMaxDelay:    duration{60 * time.Second},
			ReconnectMaxAttempts: 10,
			HandshakeTimeout:     duration{15 * time.Second},
			MaxFrameBytes:        4 << 20,
		},
		Control: ControlConfig{
			Timeout: duration{10 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Channel:    "lob:snapshots",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "lob.snapshots",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        7400,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		LogLevel: "info",
	}
}

// WSURL returns the configured stream URL, deriving it from the HTTP root
// when unset.
func (b BackendConfig) WSURL() (string, error) {
	if b.WS != "" {
		return b.WS, nil
	}
	return DeriveWSURL(b.HTTP)
}

// DeriveWSURL maps http://host[/base] to ws://host[/base]/ws and https to wss.
func DeriveWSURL(httpURL string) (string, error) {
	u, err := url.Parse(httpURL)
	if err != nil {
		return "", fmt.Errorf("config: backend.http: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("config: backend.http: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// ReconnectBase returns the first reconnect delay.
func (s StreamConfig) ReconnectBase() time.Duration { return s.ReconnectBaseDelay.Duration }

// ReconnectMax returns the reconnect delay ceiling.
func (s StreamConfig) ReconnectMax() time.Duration { return s.ReconnectMaxDelay.Duration }

// Handshake returns the WebSocket handshake timeout.
func (s StreamConfig) Handshake() time.Duration { return s.HandshakeTimeout.Duration }

// RequestTimeout returns the per-request timeout for control calls.
func (c ControlConfig) RequestTimeout() time.Duration { return c.Timeout.Duration }

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSources = map[string]bool{
	SourceWS:    true,
	SourceRedis: true,
	SourceKafka: true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Backend
	if strings.TrimSpace(c.Backend.HTTP) == "" {
		errs = append(errs, "backend: http must not be empty")
	} else if u, err := url.Parse(c.Backend.HTTP); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("backend: http must be an http(s) URL, got %q", c.Backend.HTTP))
	}
	if c.Backend.WS != "" {
		if u, err := url.Parse(c.Backend.WS); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("backend: ws must be a ws(s) URL, got %q", c.Backend.WS))
		}
	}

	// Stream
	source := strings.ToLower(c.Stream.Source)
	if !validSources[source] {
		errs = append(errs, fmt.Sprintf("stream: unknown source %q (valid: ws, redis, kafka)", c.Stream.Source))
	}
	if c.Stream.MaxFrameBytes < 0 {
		errs = append(errs, "stream: max_frame_bytes must not be negative")
	}
	if c.Stream.Reconnect {
		if c.Stream.ReconnectBaseDelay.Duration <= 0 {
			errs = append(errs, "stream: reconnect_base_delay must be positive")
		}
		if c.Stream.ReconnectMaxDelay.Duration < c.Stream.ReconnectBaseDelay.Duration {
			errs = append(errs, "stream: reconnect_max_delay must be >= reconnect_base_delay")
		}
		if c.Stream.ReconnectMaxAttempts < 0 {
			errs = append(errs, "stream: reconnect_max_attempts must not be negative")
		}
	}

	// Control
	if c.Control.Timeout.Duration <= 0 {
		errs = append(errs, "control: timeout must be positive")
	}

	// Sources that need their own section.
	if source == SourceRedis {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr is required for stream.source = redis")
		}
		if c.Redis.Channel == "" {
			errs = append(errs, "redis: channel is required for stream.source = redis")
		}
	}
	if c.Redis.MirrorChannel != "" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr is required when mirror_channel is set")
		}
		if source == SourceRedis && c.Redis.MirrorChannel == c.Redis.Channel {
			errs = append(errs, "redis: mirror_channel must differ from channel")
		}
	}
	if source == SourceKafka {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers are required for stream.source = kafka")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic is required for stream.source = kafka")
		}
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
