package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LOBWATCH_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults and the
// environment still apply. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LOBWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Backend ──
	setStr(&cfg.Backend.HTTP, "LOBWATCH_BACKEND_HTTP")
	setStr(&cfg.Backend.WS, "LOBWATCH_BACKEND_WS")

	// ── Stream ──
	setStr(&cfg.Stream.Source, "LOBWATCH_STREAM_SOURCE")
	setBool(&cfg.Stream.Reconnect, "LOBWATCH_STREAM_RECONNECT")
	setDuration(&cfg.Stream.ReconnectBaseDelay, "LOBWATCH_STREAM_RECONNECT_BASE_DELAY")
	setDuration(&cfg.Stream.ReconnectMaxDelay, "LOBWATCH_STREAM_RECONNECT_MAX_DELAY")
	setInt(&cfg.Stream.ReconnectMaxAttempts, "LOBWATCH_STREAM_RECONNECT_MAX_ATTEMPTS")
	setDuration(&cfg.Stream.HandshakeTimeout, "LOBWATCH_STREAM_HANDSHAKE_TIMEOUT")
	setInt64(&cfg.Stream.MaxFrameBytes, "LOBWATCH_STREAM_MAX_FRAME_BYTES")

	// ── Control ──
	setDuration(&cfg.Control.Timeout, "LOBWATCH_CONTROL_TIMEOUT")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LOBWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LOBWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LOBWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LOBWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LOBWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LOBWATCH_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Channel, "LOBWATCH_REDIS_CHANNEL")
	setStr(&cfg.Redis.MirrorChannel, "LOBWATCH_REDIS_MIRROR_CHANNEL")

	// ── Kafka ──
	setStringSlice(&cfg.Kafka.Brokers, "LOBWATCH_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "LOBWATCH_KAFKA_TOPIC")
	setStr(&cfg.Kafka.GroupID, "LOBWATCH_KAFKA_GROUP_ID")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LOBWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LOBWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LOBWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LOBWATCH_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "LOBWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
