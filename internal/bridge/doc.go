// Package bridge is the module facade the host talks to.
//
// A Module owns one channel manager, one call manager, the event bus and the
// diagnostics toggle. Its methods mirror the operations a host invokes:
// channel configuration and lifecycle, the three call shapes, finish and
// cancel, plus subscription to the "grpc-call" event stream.
package bridge
