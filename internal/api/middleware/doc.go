// Package middleware provides the gin middleware in front of the bridge API:
// CORS and per-client or global rate limiting.
package middleware
