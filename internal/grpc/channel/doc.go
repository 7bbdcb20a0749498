// Package channel manages the single outbound gRPC connection.
//
// The Manager builds a grpc.ClientConn from its Config and rebuilds it on
// Init, Reset, EnterIdle, or when a state poll finds it shut down. Rebuilds
// are serialized by one mutex. Calls take a Lease on the connection that was
// live when they started; a replaced connection stays open until its last
// lease is released, so swapping the channel never interrupts a call.
package channel
