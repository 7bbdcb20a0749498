// Package ws serves the bridge over a single WebSocket.
//
// The client sends commands and receives one result per command, matched by
// requestId. While connected, the socket is the module's event sink, so call
// events and diagnostics are pushed on the same connection. A newer
// connection takes the event sink over.
//
// Commands (client to server), fields by type:
//   - sendUnary, sendServerStreaming, sendClientStreamingChunk: id, path, data, headers
//   - finishClientStreaming, cancel: id (value: whether the call was found)
//   - setHost, setIsInsecure, setCompression, setResponseSizeLimit, setKeepAlive
//   - getHost, getIsInsecure
//   - setDiagnosticsEnabled: enabled
//   - initChannel, resetConnection (reason), connectionState (connect), enterIdle
//   - ping
//
// Frames (server to client):
//   - system: greeting with session and connection ids
//   - result: {requestId, ok, value?, error?, kind?}
//   - event: {name: "grpc-call", event: {id, type, payload?, error?, code?, trailers?}}
//   - diagnostic: {message}
//   - pong
package ws
