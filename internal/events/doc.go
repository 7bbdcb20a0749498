// Package events delivers normalized call events to the host.
//
// All calls publish into one Bus. A single dispatch goroutine drains the
// queue in FIFO order, so events of one call reach the subscriber in the
// order the call produced them. Events for different calls may interleave.
package events
