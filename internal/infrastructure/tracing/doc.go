/*
Package tracing provides lightweight spans for calls and HTTP requests.

Each call gets a span from start to terminal event, tagged with its handle,
method and shape; the span status is the final gRPC code name. HTTP requests
through the bridge get a span joined to any trace passed in X-Trace-ID /
X-Span-ID headers. Finished spans go to a buffered collector that logs them
at debug level.

# Usage

	tracer := tracing.New("grpcbridge", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "/pkg.Svc/Method")
	span.SetTag("call.handle", "1")
	// ... later
	span.SetStatus("OK")
	span.Finish()
	tracer.Submit(span)
*/
package tracing
