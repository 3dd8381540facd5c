// Package config provides configuration for the land sync gateway. All
// values can be set via environment variables or fall back to secure
// defaults, following the same load-then-validate shape the engine it was
// distilled from used for its own server configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// MessageEncoding selects the wire framing for Action/ActionResponse/Event/
// Join/JoinResponse/Error messages (spec §4.1).
type MessageEncoding string

const (
	MessageEncodingJSONObject    MessageEncoding = "json_object"
	MessageEncodingOpcodeJSON    MessageEncoding = "opcode_json"
	MessageEncodingOpcodeMsgpack MessageEncoding = "opcode_msgpack"
)

// StateUpdateEncoding selects the wire framing for state-update frames.
type StateUpdateEncoding string

const (
	StateUpdateEncodingJSONObject    StateUpdateEncoding = "json_object"
	StateUpdateEncodingOpcodeJSON    StateUpdateEncoding = "opcode_json"
	StateUpdateEncodingPathHashJSON  StateUpdateEncoding = "opcode_json_pathhash"
	StateUpdateEncodingOpcodeMsgpack StateUpdateEncoding = "opcode_msgpack"
)

// ParallelEncoding governs whether per-player diff encoding is fanned out
// across goroutines during a sync cycle (spec §4.6.6).
type ParallelEncoding struct {
	Enabled     bool
	MinPlayers  int
	BatchSize   int
	SmallRoomCap int // worker cap for < 30 players
	LargeRoomCap int // worker cap for >= 30 players
}

// AutoDirtyTracking governs the hysteresis switch of spec §4.6.7.
type AutoDirtyTracking struct {
	Enabled         bool
	OnThreshold     float64
	OffThreshold    float64
	RequiredSamples int
}

// RoomConfig is the per-room construction surface of spec §6.3.
type RoomConfig struct {
	LandType             string
	MessageEncoding      MessageEncoding
	StateUpdateEncoding  StateUpdateEncoding
	PathHashes           map[string]uint32
	EnableLegacyJoin     bool
	EnableDirtyTracking  bool
	ExpectedSchemaHash   string
	CreateGuestSession   bool
	ParallelEncoding     ParallelEncoding
	AutoDirtyTracking    AutoDirtyTracking
	UseSnapshotForSync   bool
}

// DefaultRoomConfig returns the gateway's secure, conservative defaults for
// a room of the given land type.
func DefaultRoomConfig(landType string) RoomConfig {
	return RoomConfig{
		LandType:            landType,
		MessageEncoding:     MessageEncodingJSONObject,
		StateUpdateEncoding: StateUpdateEncodingJSONObject,
		EnableLegacyJoin:    false,
		EnableDirtyTracking: true,
		CreateGuestSession:  true,
		ParallelEncoding: ParallelEncoding{
			Enabled:      false,
			MinPlayers:   8,
			BatchSize:    16,
			SmallRoomCap: 2,
			LargeRoomCap: 4,
		},
		AutoDirtyTracking: AutoDirtyTracking{
			Enabled:         true,
			OnThreshold:     0.30,
			OffThreshold:    0.55,
			RequiredSamples: 30,
		},
		UseSnapshotForSync: true,
	}
}

// Config is the gateway-wide, environment-driven configuration. It mirrors
// the ambient fields of the server this engine was adapted from: ports,
// timeouts, logging, security, performance, retry.
type Config struct {
	ServerPort     int
	WebDir         string
	LogLevel       string
	AllowedOrigins []string
	MaxRequestSize int64
	EnableDevMode  bool
	RequestTimeout time.Duration

	DrainBatchSize   int
	DrainIdleSleep   time.Duration
	SessionRateLimit float64 // inbound frames/sec per session
	SessionRateBurst int

	RetryEnabled           bool
	RetryMaxAttempts       int
	RetryInitialDelay      time.Duration
	RetryMaxDelay          time.Duration
	RetryBackoffMultiplier float64
	RetryJitterPercent     int

	ShutdownTimeout     time.Duration
	ShutdownGracePeriod time.Duration

	MetricsEnabled bool
}

// Load reads configuration from the environment, validates it, and returns
// secure defaults for anything unset.
func Load() (*Config, error) {
	logger := logrus.WithFields(logrus.Fields{"function": "Load", "package": "config"})
	logger.Debug("entering Load")

	cfg := &Config{
		ServerPort:     getEnvAsInt("SERVER_PORT", 8080),
		WebDir:         getEnvAsString("WEB_DIR", "./web"),
		LogLevel:       getEnvAsString("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{}),
		MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 1*1024*1024),
		EnableDevMode:  getEnvAsBool("ENABLE_DEV_MODE", true),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),

		DrainBatchSize:   getEnvAsInt("DRAIN_BATCH_SIZE", 64),
		DrainIdleSleep:   getEnvAsDuration("DRAIN_IDLE_SLEEP", 1*time.Millisecond),
		SessionRateLimit: getEnvAsFloat64("SESSION_RATE_LIMIT", 50),
		SessionRateBurst: getEnvAsInt("SESSION_RATE_BURST", 100),

		RetryEnabled:           getEnvAsBool("RETRY_ENABLED", true),
		RetryMaxAttempts:       getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay:      getEnvAsDuration("RETRY_INITIAL_DELAY", 100*time.Millisecond),
		RetryMaxDelay:          getEnvAsDuration("RETRY_MAX_DELAY", 30*time.Second),
		RetryBackoffMultiplier: getEnvAsFloat64("RETRY_BACKOFF_MULTIPLIER", 2.0),
		RetryJitterPercent:     getEnvAsInt("RETRY_JITTER_PERCENT", 10),

		ShutdownTimeout:     getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: getEnvAsDuration("SHUTDOWN_GRACE_PERIOD", 1*time.Second),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		logger.WithError(err).Error("configuration validation failed")
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("exiting Load - configuration loaded and validated")
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.ServerPort)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, level := range validLogLevels {
		if strings.EqualFold(c.LogLevel, level) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("log level must be one of %v, got %s", validLogLevels, c.LogLevel)
	}

	if c.MaxRequestSize < 1024 {
		return fmt.Errorf("max request size must be at least 1024 bytes, got %d", c.MaxRequestSize)
	}
	if !c.EnableDevMode && len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed origins must be specified when dev mode is disabled")
	}

	if c.DrainBatchSize < 1 {
		return fmt.Errorf("drain batch size must be at least 1, got %d", c.DrainBatchSize)
	}

	if c.RetryEnabled {
		if c.RetryMaxAttempts < 1 {
			return fmt.Errorf("retry max attempts must be at least 1 when retry is enabled")
		}
		if c.RetryMaxDelay < c.RetryInitialDelay {
			return fmt.Errorf("retry max delay must be >= initial delay")
		}
		if c.RetryBackoffMultiplier <= 1.0 {
			return fmt.Errorf("retry backoff multiplier must be greater than 1.0")
		}
	}

	return nil
}

// OriginAllowed reports whether origin is permitted to open a WebSocket
// connection under this configuration.
func (c *Config) OriginAllowed(origin string) bool {
	if c.EnableDevMode {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
