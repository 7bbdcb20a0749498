/*
Package monitoring provides Prometheus metrics for the bridge.

# Overview

Each Metrics value owns a private registry, so several instances can coexist
(tests create one per case). Every Record method is safe on a nil receiver,
which lets components treat metrics as optional.

# Metrics

- HTTP requests (count and latency by route)
- Calls started, rejected, terminated (by status code) and in flight
- Events delivered and dropped
- Channel rebuilds and last polled connectivity state
- WebSocket connections and messages
- Uptime

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
