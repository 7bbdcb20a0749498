// Package compression registers klauspost gzip and zstd implementations as
// gRPC message compressors. Calls select one by name through
// grpc.UseCompressor.
package compression
