package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landsync/internal/config"
	"landsync/internal/metrics"
	"landsync/land"
)

// TestConfigureLogging tests the logging configuration function.
func TestConfigureLogging(t *testing.T) {
	tests := []struct {
		name          string
		logLevel      string
		expectedLevel logrus.Level
	}{
		{name: "debug level", logLevel: "debug", expectedLevel: logrus.DebugLevel},
		{name: "info level", logLevel: "info", expectedLevel: logrus.InfoLevel},
		{name: "warn level", logLevel: "warn", expectedLevel: logrus.WarnLevel},
		{name: "error level", logLevel: "error", expectedLevel: logrus.ErrorLevel},
		{name: "invalid level falls back to info", logLevel: "invalid", expectedLevel: logrus.InfoLevel},
		{name: "empty level falls back to info", logLevel: "", expectedLevel: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logrus.SetOutput(io.Discard)
			defer logrus.SetOutput(os.Stderr)

			configureLogging(tt.logLevel)
			assert.Equal(t, tt.expectedLevel, logrus.GetLevel())
		})
	}
}

// TestLogStartupInfo tests that startup info is logged correctly.
func TestLogStartupInfo(t *testing.T) {
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	defer logrus.SetOutput(os.Stderr)

	cfg := &config.Config{
		ServerPort:    8080,
		LogLevel:      "info",
		EnableDevMode: true,
	}

	logStartupInfo(cfg)

	output := buf.String()
	assert.Contains(t, output, "Starting landsync gateway")
	assert.Contains(t, output, "8080")
}

// TestSetupShutdownHandling tests the shutdown signal channel setup.
func TestSetupShutdownHandling(t *testing.T) {
	sigChan, errChan := setupShutdownHandling()

	assert.NotNil(t, sigChan)
	assert.NotNil(t, errChan)
	assert.Equal(t, 1, cap(sigChan))
	assert.Equal(t, 2, cap(errChan))

	signal.Stop(sigChan)
}

// TestPopulateLandManagers verifies the demo land type is registered and
// shares the router's transport.
func TestPopulateLandManagers(t *testing.T) {
	cfg := &config.Config{DrainBatchSize: 8, DrainIdleSleep: time.Millisecond, EnableDevMode: true}
	m := metrics.New()
	managers := make(map[string]*land.Manager)
	rtr := buildRouter(cfg, managers, m)
	defer rtr.Shutdown()

	populateLandManagers(managers, rtr, m)

	require.Contains(t, managers, "demo-room")
	assert.NotNil(t, managers["demo-room"])
}

// TestBuildRealm verifies every manager gets a land server registered.
func TestBuildRealm(t *testing.T) {
	cfg := &config.Config{DrainBatchSize: 8, DrainIdleSleep: time.Millisecond, EnableDevMode: true}
	m := metrics.New()
	managers := make(map[string]*land.Manager)
	rtr := buildRouter(cfg, managers, m)
	defer rtr.Shutdown()
	populateLandManagers(managers, rtr, m)

	rlm := buildRealm(managers)

	require.NotNil(t, rlm)
	results := rlm.HealthCheck(context.Background())
	assert.Contains(t, results, "demo-room")
}

// TestBuildRouter verifies the router is constructed with a working transport.
func TestBuildRouter(t *testing.T) {
	cfg := &config.Config{DrainBatchSize: 8, DrainIdleSleep: time.Millisecond, EnableDevMode: true}
	m := metrics.New()
	managers := make(map[string]*land.Manager)
	rtr := buildRouter(cfg, managers, m)

	require.NotNil(t, rtr)
	require.NotNil(t, rtr.Transport())
	rtr.Shutdown()
}

// TestOpenListener verifies a listener can be opened on an OS-assigned port.
func TestOpenListener(t *testing.T) {
	cfg := &config.Config{ServerPort: 0}
	listener := openListener(cfg)
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	assert.GreaterOrEqual(t, addr.Port, 0)
}

// TestWaitForShutdownSignal_Signal tests that shutdown signal is handled.
func TestWaitForShutdownSignal_Signal(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	errChan := make(chan error, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		sigChan <- syscall.SIGINT
	}()

	done := make(chan struct{})
	go func() {
		waitForShutdownSignal(sigChan, errChan)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("waitForShutdownSignal did not return after signal")
	}
}

// TestWaitForShutdownSignal_Error tests that server errors trigger shutdown.
func TestWaitForShutdownSignal_Error(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	errChan := make(chan error, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		errChan <- assert.AnError
	}()

	done := make(chan struct{})
	go func() {
		waitForShutdownSignal(sigChan, errChan)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("waitForShutdownSignal did not return after error")
	}
}

// TestPerformGracefulShutdown tests the graceful shutdown process end to end.
func TestPerformGracefulShutdown(t *testing.T) {
	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	cfg := &config.Config{ShutdownTimeout: 2 * time.Second, ShutdownGracePeriod: 10 * time.Millisecond, DrainBatchSize: 8, DrainIdleSleep: time.Millisecond, EnableDevMode: true}
	m := metrics.New()
	managers := make(map[string]*land.Manager)
	rtr := buildRouter(cfg, managers, m)
	populateLandManagers(managers, rtr, m)
	rlm := buildRealm(managers)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		performGracefulShutdown(rtr, rlm, listener, cfg)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("graceful shutdown did not complete in time")
	}
}

// TestLoadAndConfigureSystem tests the configuration loading function.
func TestLoadAndConfigureSystem(t *testing.T) {
	os.Setenv("SERVER_PORT", "9999")
	os.Setenv("LOG_LEVEL", "warn")
	defer os.Unsetenv("SERVER_PORT")
	defer os.Unsetenv("LOG_LEVEL")

	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	cfg := loadAndConfigureSystem()

	assert.NotNil(t, cfg)
	assert.Equal(t, 9999, cfg.ServerPort)
	assert.Equal(t, "warn", cfg.LogLevel)
}

// BenchmarkConfigureLogging benchmarks the logging configuration.
func BenchmarkConfigureLogging(b *testing.B) {
	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	for i := 0; i < b.N; i++ {
		configureLogging("info")
	}
}

// BenchmarkSetupShutdownHandling benchmarks shutdown handler setup.
func BenchmarkSetupShutdownHandling(b *testing.B) {
	for i := 0; i < b.N; i++ {
		sigChan, _ := setupShutdownHandling()
		signal.Stop(sigChan)
	}
}
