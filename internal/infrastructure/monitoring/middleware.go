package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a store operation
type Timer struct {
	start   time.Time
	metrics *Metrics
	op      string
}

// NewTimer starts timing op
func NewTimer(metrics *Metrics, op string) *Timer {
	return &Timer{start: time.Now(), metrics: metrics, op: op}
}

// Stop records the duration with the outcome derived from err
func (t *Timer) Stop(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	t.metrics.RecordStoreOp(t.op, status, time.Since(t.start))
}
