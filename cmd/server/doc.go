// Package main is the entry point for the gRPC bridge server.
//
// The bridge lets a host that cannot speak gRPC itself drive calls against
// one upstream gRPC server. Calls are started over REST or WebSocket under
// numeric ids; headers, responses, trailers and errors come back as
// "grpc-call" events on the WebSocket stream.
//
//	Host (REST / WebSocket) → bridge → upstream gRPC server
//
// Configuration:
//   - Defaults, then an optional YAML/TOML file (-config)
//   - Environment variables (GRPC_HOST, GRPC_INSECURE, PORT, ...)
//   - CLI flags (override both)
//
// Usage:
//
//	# Plaintext upstream, channel built on start
//	GRPC_INIT_ON_START=true ./server -grpc-host localhost:50051 -insecure
//
//	# Development mode (console logs, debug level)
//	./server -dev
package main
