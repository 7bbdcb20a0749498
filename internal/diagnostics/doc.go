// Package diagnostics carries optional status notifications (channel
// resets, connectivity changes) to whoever is watching. Nothing in the call
// path depends on a notification being delivered.
package diagnostics
