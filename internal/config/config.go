package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the relay listens on.
	DefaultAddr = ":43180"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 64 << 10
	// DefaultIdleTimeout is how long a room with no connections and no accepted
	// messages stays resident before its in-memory state is released.
	DefaultIdleTimeout = 15 * time.Minute
	// DefaultSendBuffer is the per-connection outbound queue depth.
	DefaultSendBuffer = 256
	// DefaultDataDir is where the file-backed room store keeps its records.
	DefaultDataDir = "data"

	// DefaultLogLevel controls verbosity for relay logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "relay.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the relay service.
type Config struct {
	Address          string
	AllowedOrigins   []string
	ControllerSecret string
	IdleTimeout      time.Duration
	PingInterval     time.Duration
	MaxPayloadBytes  int64
	SendBuffer       int
	DataDir          string
	DatabaseURL      string
	JournalDir       string
	Logging          LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ControllerAuthEnabled reports whether controller admissions require a shared secret.
func (c *Config) ControllerAuthEnabled() bool {
	return c != nil && c.ControllerSecret != ""
}

// OriginsRestricted reports whether cross-origin upgrades are limited to an allow-list.
func (c *Config) OriginsRestricted() bool {
	return c != nil && len(c.AllowedOrigins) > 0
}

// Load reads the relay configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:          getString("RELAY_ADDR", DefaultAddr),
		AllowedOrigins:   parseList(os.Getenv("RELAY_ALLOWED_ORIGINS")),
		ControllerSecret: strings.TrimSpace(os.Getenv("RELAY_GM_SECRET")),
		IdleTimeout:      DefaultIdleTimeout,
		PingInterval:     DefaultPingInterval,
		MaxPayloadBytes:  DefaultMaxPayloadBytes,
		SendBuffer:       DefaultSendBuffer,
		DataDir:          getString("RELAY_DATA_DIR", DefaultDataDir),
		DatabaseURL:      strings.TrimSpace(os.Getenv("RELAY_DATABASE_URL")),
		JournalDir:       strings.TrimSpace(os.Getenv("RELAY_JOURNAL_DIR")),
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("RELAY_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("RELAY_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("RELAY_IDLE_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("RELAY_IDLE_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.IdleTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RELAY_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("RELAY_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RELAY_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("RELAY_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RELAY_SEND_BUFFER")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("RELAY_SEND_BUFFER must be a positive integer, got %q", raw))
		} else {
			cfg.SendBuffer = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RELAY_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("RELAY_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RELAY_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("RELAY_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RELAY_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("RELAY_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RELAY_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("RELAY_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if cfg.DatabaseURL == "" && strings.TrimSpace(cfg.DataDir) == "" {
		problems = append(problems, "RELAY_DATA_DIR must be set when RELAY_DATABASE_URL is empty")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
