package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return New(zap.New(core), time.Second), logs
}

func TestStartSpanReusesTraceID(t *testing.T) {
	tracer, _ := newObserved(zapcore.DebugLevel)

	span, ctx := tracer.StartSpan(context.Background(), "outer")
	assert.True(t, strings.HasPrefix(string(span.TraceID), "trace_"))
	assert.Equal(t, span.TraceID, GetTraceID(ctx))

	inner, _ := tracer.StartSpan(ctx, "inner")
	assert.Equal(t, span.TraceID, inner.TraceID)
}

func TestSubmitLevels(t *testing.T) {
	tracer, logs := newObserved(zapcore.DebugLevel)

	ok, _ := tracer.StartSpan(context.Background(), "ok")
	ok.SetStatus(200)
	ok.Finish()
	tracer.Submit(ok)

	failed, _ := tracer.StartSpan(context.Background(), "failed")
	failed.SetStatus(500)
	failed.Finish()
	tracer.Submit(failed)

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.EqualValues(t, 2, tracer.Finished())
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newObserved(zapcore.DebugLevel)

	var seen TraceID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/api/tasks", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	// Generated id
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, string(seen), w.Header().Get(HeaderTraceID))

	// Propagated id
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set(HeaderTraceID, "client-trace-1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, TraceID("client-trace-1"), seen)
	assert.Equal(t, "client-trace-1", w.Header().Get(HeaderTraceID))

	require.Equal(t, 2, logs.Len())
	fields := logs.All()[1].ContextMap()
	assert.Equal(t, "/api/tasks", fields["span"])
	assert.Equal(t, "client-trace-1", fields["trace_id"])
	assert.Equal(t, "200", fields["http.status"])
}
