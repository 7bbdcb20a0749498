// Package logging provides structured logging using uber/zap.
//
// Production mode writes JSON, development mode writes colored console
// output. Subsystems take a named child via Component ("channel", "calls",
// "events", "ws", ...), so every line carries its origin.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	log := logger.Component("channel")
//	log.Info("channel built", zap.String("target", "localhost:50051"))
package logging
