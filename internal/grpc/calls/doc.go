// Package calls runs remote calls over the shared channel and tracks them
// by caller-chosen handle.
//
// A call is started with a Shape (Unary, ServerStreaming, ClientStreaming)
// and publishes events in this order: at most one headers event, its
// response events, then exactly one trailers or error event. The handle is
// removed from the Registry before the terminal event is emitted.
//
// Payloads are opaque bytes; a pass-through codec puts them on the wire
// untouched. No operation waits on the network: streams are opened and
// read on per-call goroutines and results arrive only as events.
package calls
