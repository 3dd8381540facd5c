// Package main implements the landsync gateway server.
//
// The gateway accepts WebSocket connections, routes join requests to the
// right land instance, and synchronizes per-room state back to every
// connected client through diff-based wire frames.
//
// # Architecture
//
//   - Configuration loading and validation (via internal/config)
//   - Logging setup and initialization
//   - A LandRouter front door shared across every land type
//   - One LandManager + ticking LandServer per registered land type,
//     composed into a Realm
//   - Server lifecycle management with graceful shutdown
//   - Signal handling for SIGINT and SIGTERM
//
// # Startup Sequence
//
// 1. Load configuration from environment variables with secure defaults
// 2. Configure logging based on LOG_LEVEL setting
// 3. Register land types and build their managers
// 4. Start the realm's tick loops and the HTTP front door
// 5. Start listening for connections
// 6. Handle shutdown signals gracefully
//
// # Environment Variables
//
// The server supports the following environment variables:
//
//   - SERVER_PORT: HTTP server port (default: 8080)
//   - LOG_LEVEL: Logging verbosity (debug, info, warn, error; default: info)
//   - ENABLE_DEV_MODE: Development mode flag (default: true)
//   - ALLOWED_ORIGINS: Comma-separated list of allowed WebSocket origins
//   - DRAIN_BATCH_SIZE: Outbound batch drain size (default: 64)
//   - METRICS_ENABLED: Expose /metrics (default: true)
//   - SHUTDOWN_TIMEOUT: Graceful shutdown timeout (default: 30s)
//
// # Usage
//
// Run the server with default settings:
//
//	./server
//
// Run with custom port and debug logging:
//
//	SERVER_PORT=9000 LOG_LEVEL=debug ./server
//
// # Graceful Shutdown
//
// The server handles SIGINT (Ctrl+C) and SIGTERM signals gracefully:
//
// 1. Stop accepting new connections
// 2. Shut down the router's shared transport and every active land
// 3. Exit cleanly
//
// The shutdown process honors SHUTDOWN_TIMEOUT before forcing exit.
package main
