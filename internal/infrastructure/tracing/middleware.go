package tracing

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// maxTraceIDLen bounds client supplied trace ids
const maxTraceIDLen = 128

// HTTPMiddleware creates Gin middleware for HTTP tracing. An incoming
// X-Trace-ID is honoured; otherwise one is generated. The id is echoed in
// the response.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(HeaderTraceID); incoming != "" && len(incoming) <= maxTraceIDLen {
			ctx = WithTraceID(ctx, TraceID(incoming))
		}

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, name)
		span.SetTag("http.method", c.Request.Method)

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, string(span.TraceID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}

		span.Finish()
		tracer.Submit(span)
	}
}
