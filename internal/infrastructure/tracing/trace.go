package tracing

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/todosync/internal/shared/id"
)

// TraceID identifies one request across log lines
type TraceID string

// HeaderTraceID carries the trace id in requests and responses
const HeaderTraceID = "X-Trace-ID"

// Span is a single timed operation
type Span struct {
	TraceID    TraceID
	Name       string
	StartTime  time.Time
	Duration   time.Duration
	StatusCode int
	Tags       map[string]string
	Error      error
}

// SetTag attaches a key/value pair
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError marks the span as failed
func (s *Span) SetError(err error) {
	s.Error = err
}

// SetStatus records the response status
func (s *Span) SetStatus(code int) {
	s.StatusCode = code
}

// Finish stamps the duration
func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

// Tracer logs finished spans. Slow or failed spans are logged at warn level,
// the rest at debug.
type Tracer struct {
	logger   *zap.Logger
	slow     time.Duration
	finished atomic.Int64
}

// New creates a tracer. Spans slower than slow are reported as warnings; a
// zero slow selects one second.
func New(logger *zap.Logger, slow time.Duration) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if slow <= 0 {
		slow = time.Second
	}
	return &Tracer{logger: logger.Named("trace"), slow: slow}
}

// StartSpan begins a span, reusing the trace id in ctx or minting one
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = NewTraceID()
		ctx = WithTraceID(ctx, traceID)
	}
	return &Span{
		TraceID:   traceID,
		Name:      name,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}, ctx
}

// Submit logs a finished span
func (t *Tracer) Submit(span *Span) {
	t.finished.Add(1)

	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span", span.Name),
		zap.Duration("duration", span.Duration),
		zap.Int("status", span.StatusCode),
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	switch {
	case span.Error != nil:
		t.logger.Warn("span failed", append(fields, zap.Error(span.Error))...)
	case span.StatusCode >= 500:
		t.logger.Warn("span failed", fields...)
	case span.Duration >= t.slow:
		t.logger.Warn("slow span", fields...)
	default:
		t.logger.Debug("span finished", fields...)
	}
}

// Finished returns how many spans have been submitted
func (t *Tracer) Finished() int64 {
	return t.finished.Load()
}

// NewTraceID mints a sortable trace id
func NewTraceID() TraceID {
	return TraceID(id.Default().GenerateWithPrefix("trace"))
}

type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID stores traceID in ctx
func WithTraceID(ctx context.Context, traceID TraceID) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID extracts the trace id from ctx, or "" when absent
func GetTraceID(ctx context.Context) TraceID {
	if traceID, ok := ctx.Value(traceIDKey).(TraceID); ok {
		return traceID
	}
	return ""
}
