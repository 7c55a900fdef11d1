package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordHTTPRequest("GET", "/", "200", time.Millisecond)
	m.IncWSConnections()
	m.RecordBroadcast(1, 0)
	NewTimer(m, "list").Stop(nil)
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestConnectionsAndBroadcasts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()
	m.RecordBroadcast(3, 1)
	m.RecordWSMessage("in", "ping")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.WSConnections))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.BroadcastDeliver))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BroadcastFailures))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ActiveConnections)
	assert.Equal(t, int64(1), snap.Broadcasts)
	assert.Equal(t, int64(1), snap.MessagesIn)
}

func TestTimerStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	NewTimer(m, "create").Stop(nil)
	NewTimer(m, "create").Stop(errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.StoreOps.WithLabelValues("create", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StoreOps.WithLabelValues("create", "error")))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/api/tasks/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks/abc", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/tasks/:id", "404")))
	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
}
