// Package server assembles the bridge process: it builds the module from
// configuration, mounts the REST and WebSocket surfaces behind the standard
// middleware stack and runs the HTTP server.
package server
