// Package http exposes the bridge module as a JSON REST API.
//
// Channel routes configure and drive the outbound connection; call routes
// start calls under a caller-chosen numeric id and finish or cancel them.
// Call outcomes are not returned here: they arrive as "grpc-call" events on
// the WebSocket stream.
//
// Error mapping:
//   - channel not created: 409
//   - transport failure starting a call: 502
//   - malformed request or configuration: 400
package http
