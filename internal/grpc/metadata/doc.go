// Package metadata converts between caller header maps and gRPC wire metadata.
//
// Outbound headers are always sent as string entries. Inbound headers and
// trailers are surfaced as a flat string map:
//   - keys ending in "-bin" carry raw bytes and are returned base64 encoded
//   - keys starting with ":" are protocol pseudo-headers and are dropped
//   - repeated keys keep their last value
package metadata
