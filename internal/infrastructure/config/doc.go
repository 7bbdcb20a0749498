// Package config provides 12-factor configuration management for the bridge.
//
// Values are layered: built-in defaults, then an optional YAML or TOML file,
// then environment variables. CLI flags in cmd/server override the result.
//
// Configuration Sections:
//   - Server: HTTP listener (port, host)
//   - Channel: target host, TLS, compression, size limit, keep-alive
//   - Events: event queue capacity
//   - Diagnostics: status notifications toggle
//   - Breaker: call-start circuit breaker
//   - Logging: log level and output format
//   - RateLimit: per-client rate limiting
//
// Environment Variables:
//   - PORT, HOST
//   - GRPC_HOST, GRPC_INSECURE, GRPC_COMPRESSION, GRPC_COMPRESSOR
//   - GRPC_RESPONSE_SIZE_LIMIT, GRPC_KEEPALIVE, GRPC_KEEPALIVE_TIME, GRPC_KEEPALIVE_TIMEOUT
//   - GRPC_INIT_ON_START, GRPC_RESET_ON_TRANSIENT_FAILURE, GRPC_AUTO_RESET_RATE, GRPC_AUTO_RESET_BURST
//   - EVENT_BUFFER, DIAGNOSTICS_ENABLED
//   - BREAKER_ENABLED, BREAKER_MAX_FAILURES, BREAKER_TIMEOUT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
