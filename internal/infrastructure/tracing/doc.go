/*
Package tracing tags each REST request with a trace id and logs its timing.

# Overview

A trace id is taken from the X-Trace-ID request header or generated as a
prefixed ULID. It is stored in the request context, echoed in the response
header and attached to every span log line, so a client report can be
matched to server logs.

# Usage

	tracer := tracing.New(logger, time.Second)
	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Spans that fail, answer 5xx or run longer than the slow threshold are logged
at warn level; everything else at debug.
*/
package tracing
