package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"landsync/internal/config"
	"landsync/internal/demokeeper"
	"landsync/internal/health"
	"landsync/internal/metrics"
	"landsync/land"
	"landsync/realm"
	"landsync/router"
	"landsync/transport"
)

func main() {
	cfg := loadAndConfigureSystem()
	m := metrics.New()

	// managers is populated after the router exists: every land.Manager in
	// it shares the router's single Transport (router-managed mode, spec
	// §4.7), and the router looks entries up by reference through this same
	// map as joins arrive, so filling it in after construction is safe.
	managers := make(map[string]*land.Manager)
	rtr := buildRouter(cfg, managers, m)
	populateLandManagers(managers, rtr, m)
	rlm := buildRealm(managers)

	listener := openListener(cfg)
	executeServerLifecycle(rtr, rlm, listener, cfg, m)
}

// loadAndConfigureSystem loads configuration and sets up logging.
func loadAndConfigureSystem() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	configureLogging(cfg.LogLevel)
	logStartupInfo(cfg)
	return cfg
}

// configureLogging sets up the logging system based on configuration.
func configureLogging(logLevel string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// logStartupInfo logs server startup information.
func logStartupInfo(cfg *config.Config) {
	logrus.WithFields(logrus.Fields{
		"port":     cfg.ServerPort,
		"logLevel": cfg.LogLevel,
		"devMode":  cfg.EnableDevMode,
	}).Info("Starting landsync gateway")
}

// populateLandManagers fills managers with one *land.Manager per registered
// land type, every one of them sharing rtr's Transport rather than owning a
// private one (router-managed mode, spec §4.7). The concrete LandKeeper is
// an external collaborator out of this gateway's scope; this registers the
// in-memory demo keeper so the gateway is runnable standalone, the way the
// teacher's cmd/*-demo commands stand in for a subsystem they're
// demonstrating rather than shipping.
func populateLandManagers(managers map[string]*land.Manager, rtr *router.Router, m *metrics.Metrics) {
	registry := land.NewTypeRegistry()
	if err := registry.Register("demo-room", demokeeper.NewFactory(), nil, nil); err != nil {
		logrus.WithError(err).Fatal("Failed to register demo land type")
	}

	managers["demo-room"] = land.NewSharedManager(registry, m, rtr.Transport())
}

// buildRealm wraps each land-type manager in a ticking LandServer.
func buildRealm(managers map[string]*land.Manager) *realm.Realm {
	rlm := realm.New()
	for landType, mgr := range managers {
		if err := rlm.Register(landType, realm.NewLandServer(landType, mgr, 100*time.Millisecond)); err != nil {
			logrus.WithError(err).WithField("landType", landType).Fatal("Failed to register land server")
		}
	}
	return rlm
}

// buildRouter builds the front-door Router over every land type's manager.
func buildRouter(cfg *config.Config, managers map[string]*land.Manager, m *metrics.Metrics) *router.Router {
	return router.New(transport.Config{
		DrainBatchSize: cfg.DrainBatchSize,
		DrainIdleSleep: cfg.DrainIdleSleep,
		OriginAllowed:  cfg.OriginAllowed,
		Metrics:        m,
	}, managers, func(landType string) config.RoomConfig {
		return config.DefaultRoomConfig(landType)
	}, m)
}

// openListener starts the network listener the gateway serves from.
func openListener(cfg *config.Config) net.Listener {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ServerPort))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start listener")
	}
	return listener
}

// executeServerLifecycle handles the complete server lifecycle including startup and shutdown.
func executeServerLifecycle(rtr *router.Router, rlm *realm.Realm, listener net.Listener, cfg *config.Config, m *metrics.Metrics) {
	sigChan, errChan := setupShutdownHandling()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startRealmAsync(ctx, rlm, errChan)
	startServerAsync(rtr, rlm, listener, cfg, m, errChan)
	waitForShutdownSignal(sigChan, errChan)

	cancel()
	performGracefulShutdown(rtr, rlm, listener, cfg)
}

// setupShutdownHandling creates channels for graceful shutdown signal handling.
func setupShutdownHandling() (chan os.Signal, chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	errChan := make(chan error, 2)
	return sigChan, errChan
}

// startRealmAsync runs every registered land server's tick loop in the background.
func startRealmAsync(ctx context.Context, rlm *realm.Realm, errChan chan error) {
	go func() {
		if err := rlm.Run(ctx); err != nil {
			errChan <- fmt.Errorf("realm run failed: %w", err)
		}
	}()
}

// startServerAsync starts the HTTP front door in a background goroutine.
func startServerAsync(rtr *router.Router, rlm *realm.Realm, listener net.Listener, cfg *config.Config, m *metrics.Metrics, errChan chan error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		rtr.ServeWebSocket(w, r, nil)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		for _, resp := range rlm.HealthCheck(r.Context()) {
			if resp.Status != health.StatusHealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, "unhealthy")
				return
			}
		}
		fmt.Fprint(w, "ok")
	})
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", m.Handler())
	}

	srv := &http.Server{Handler: mux}
	go func() {
		logrus.WithField("address", listener.Addr()).Info("Server listening")
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()
}

// waitForShutdownSignal waits for either a shutdown signal or server error.
func waitForShutdownSignal(sigChan chan os.Signal, errChan chan error) {
	select {
	case sig := <-sigChan:
		logrus.WithField("signal", sig).Info("Received shutdown signal")
	case err := <-errChan:
		logrus.WithError(err).Error("Server error")
	}
}

// performGracefulShutdown handles the graceful server shutdown process.
func performGracefulShutdown(rtr *router.Router, rlm *realm.Realm, listener net.Listener, cfg *config.Config) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	logrus.Info("Shutting down server gracefully...")

	if err := listener.Close(); err != nil {
		logrus.WithError(err).Warn("Error closing listener")
	}

	rtr.Shutdown()
	rlm.Shutdown(shutdownCtx)

	select {
	case <-shutdownCtx.Done():
		logrus.Warn("Shutdown timeout exceeded, forcing exit")
	case <-time.After(cfg.ShutdownGracePeriod):
		logrus.Info("Server shutdown completed")
	}
}
