package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"SERVER_PORT", "WEB_DIR", "LOG_LEVEL", "ALLOWED_ORIGINS", "MAX_REQUEST_SIZE",
	"ENABLE_DEV_MODE", "REQUEST_TIMEOUT", "DRAIN_BATCH_SIZE", "DRAIN_IDLE_SLEEP",
	"SESSION_RATE_LIMIT", "SESSION_RATE_BURST", "RETRY_ENABLED", "RETRY_MAX_ATTEMPTS",
	"RETRY_INITIAL_DELAY", "RETRY_MAX_DELAY", "RETRY_BACKOFF_MULTIPLIER",
	"RETRY_JITTER_PERCENT", "SHUTDOWN_TIMEOUT", "SHUTDOWN_GRACE_PERIOD", "METRICS_ENABLED",
}

func clearTestEnv() {
	for _, key := range configEnvVars {
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectError bool
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name:        "default configuration",
			envVars:     map[string]string{},
			expectError: false,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.ServerPort)
				assert.Equal(t, "./web", cfg.WebDir)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, []string{}, cfg.AllowedOrigins)
				assert.Equal(t, true, cfg.EnableDevMode)
				assert.Equal(t, 64, cfg.DrainBatchSize)
				assert.Equal(t, 3, cfg.RetryMaxAttempts)
			},
		},
		{
			name: "custom configuration from environment",
			envVars: map[string]string{
				"SERVER_PORT":       "9090",
				"LOG_LEVEL":         "debug",
				"ALLOWED_ORIGINS":   "http://localhost:3000,https://example.com",
				"DRAIN_BATCH_SIZE":  "128",
				"SESSION_RATE_LIMIT": "100",
			},
			expectError: false,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.ServerPort)
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, []string{"http://localhost:3000", "https://example.com"}, cfg.AllowedOrigins)
				assert.Equal(t, 128, cfg.DrainBatchSize)
				assert.Equal(t, 100.0, cfg.SessionRateLimit)
			},
		},
		{
			name:        "invalid port",
			envVars:     map[string]string{"SERVER_PORT": "99999"},
			expectError: true,
		},
		{
			name:        "invalid log level",
			envVars:     map[string]string{"LOG_LEVEL": "invalid"},
			expectError: true,
		},
		{
			name:        "max request size too small",
			envVars:     map[string]string{"MAX_REQUEST_SIZE": "512"},
			expectError: true,
		},
		{
			name:        "production mode without allowed origins",
			envVars:     map[string]string{"ENABLE_DEV_MODE": "false"},
			expectError: true,
		},
		{
			name: "production mode with allowed origins",
			envVars: map[string]string{
				"ENABLE_DEV_MODE": "false",
				"ALLOWED_ORIGINS": "https://production.example.com",
			},
			expectError: false,
			validate: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.EnableDevMode)
				assert.Equal(t, []string{"https://production.example.com"}, cfg.AllowedOrigins)
			},
		},
		{
			name:        "drain batch size too small",
			envVars:     map[string]string{"DRAIN_BATCH_SIZE": "0"},
			expectError: true,
		},
		{
			name: "retry max delay below initial delay",
			envVars: map[string]string{
				"RETRY_INITIAL_DELAY": "5s",
				"RETRY_MAX_DELAY":     "1s",
			},
			expectError: true,
		},
		{
			name:        "retry backoff multiplier too small",
			envVars:     map[string]string{"RETRY_BACKOFF_MULTIPLIER": "1.0"},
			expectError: true,
		},
		{
			name:        "retry disabled skips retry validation",
			envVars:     map[string]string{"RETRY_ENABLED": "false", "RETRY_MAX_ATTEMPTS": "0"},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv()
			for key, value := range tt.envVars {
				os.Setenv(key, value)
				defer os.Unsetenv(key)
			}

			cfg, err := Load()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		origin   string
		expected bool
	}{
		{
			name:     "dev mode allows everything",
			cfg:      &Config{EnableDevMode: true, AllowedOrigins: []string{"https://example.com"}},
			origin:   "https://unknown.com",
			expected: true,
		},
		{
			name:     "production mode allows listed origin",
			cfg:      &Config{EnableDevMode: false, AllowedOrigins: []string{"https://example.com"}},
			origin:   "https://example.com",
			expected: true,
		},
		{
			name:     "production mode rejects unlisted origin",
			cfg:      &Config{EnableDevMode: false, AllowedOrigins: []string{"https://example.com"}},
			origin:   "https://malicious.site",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.OriginAllowed(tt.origin))
		})
	}
}

func TestDefaultRoomConfig(t *testing.T) {
	rc := DefaultRoomConfig("arena")

	assert.Equal(t, "arena", rc.LandType)
	assert.Equal(t, MessageEncodingJSONObject, rc.MessageEncoding)
	assert.Equal(t, StateUpdateEncodingJSONObject, rc.StateUpdateEncoding)
	assert.True(t, rc.EnableDirtyTracking)
	assert.True(t, rc.UseSnapshotForSync)
	assert.Equal(t, 8, rc.ParallelEncoding.MinPlayers)
	assert.Equal(t, 30, rc.AutoDirtyTracking.RequiredSamples)
}

func TestGetEnvHelpersFallBackToDefaultsOnMissingOrInvalidValues(t *testing.T) {
	clearTestEnv()

	assert.Equal(t, "default", getEnvAsString("TEST_STRING", "default"))
	os.Setenv("TEST_STRING", "custom")
	defer os.Unsetenv("TEST_STRING")
	assert.Equal(t, "custom", getEnvAsString("TEST_STRING", "default"))

	assert.Equal(t, 5, getEnvAsInt("TEST_INT_MISSING", 5))
	os.Setenv("TEST_INT_BAD", "not-a-number")
	defer os.Unsetenv("TEST_INT_BAD")
	assert.Equal(t, 5, getEnvAsInt("TEST_INT_BAD", 5))

	assert.Equal(t, time.Second, getEnvAsDuration("TEST_DUR_MISSING", time.Second))

	assert.Equal(t, []string{"a", "b"}, getEnvAsStringSlice("TEST_SLICE_MISSING", []string{"a", "b"}))
	os.Setenv("TEST_SLICE", "x, y ,z")
	defer os.Unsetenv("TEST_SLICE")
	assert.Equal(t, []string{"x", "y", "z"}, getEnvAsStringSlice("TEST_SLICE", nil))
}
