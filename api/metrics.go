package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	framesSpanName    = "retro.frames.post"
	framesEventName   = "frames.request.metrics"
	framesEventDomain = "retro"
)

// frameRequestMetrics gathers per-request timings for the frame ingest
// route and emits them both as a log entry and as a span event.
type frameRequestMetrics struct {
	logger           *log.Logger
	span             trace.Span
	start            time.Time
	authDuration     time.Duration
	dispatchDuration time.Duration
	publishDuration  time.Duration
	op               string
	framesOut        int
	errorStage       string
}

func newFrameRequestMetrics(ctx context.Context, logger *log.Logger) (*frameRequestMetrics, context.Context) {
	m := &frameRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
	tracer := otel.Tracer("retro/api")
	spanCtx, span := tracer.Start(ctx, framesSpanName, trace.WithSpanKind(trace.SpanKindServer))
	m.span = span
	return m, spanCtx
}

func (m *frameRequestMetrics) ObserveAuth(d time.Duration) {
	if d <= 0 {
		return
	}
	m.authDuration = d
}

func (m *frameRequestMetrics) ObserveDispatch(d time.Duration) {
	if d <= 0 {
		return
	}
	m.dispatchDuration = d
}

func (m *frameRequestMetrics) ObservePublish(d time.Duration) {
	if d <= 0 {
		return
	}
	m.publishDuration = d
}

func (m *frameRequestMetrics) SetOp(op string) {
	m.op = op
}

func (m *frameRequestMetrics) SetFramesOut(count int) {
	if count < 0 {
		count = 0
	}
	m.framesOut = count
}

func (m *frameRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log finalizes the request span and writes the observability event. Safe
// to call exactly once per request.
func (m *frameRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", "/api/frames"),
		attribute.Int("http.status_code", status),
		attribute.Float64("retro.frames.total_ms", totalMs),
		attribute.Int("retro.frames.frames_out", m.framesOut),
	}
	if m.op != "" {
		attrs = append(attrs, attribute.String("retro.frames.op", m.op))
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("retro.frames.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.dispatchDuration > 0 {
		attrs = append(attrs, attribute.Float64("retro.frames.dispatch_ms", durationToMillis(m.dispatchDuration)))
	}
	if m.publishDuration > 0 {
		attrs = append(attrs, attribute.Float64("retro.frames.publish_ms", durationToMillis(m.publishDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("retro.frames.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", framesEventName),
			attribute.String("event.domain", framesEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
			m.span.RecordError(err)
		} else if status >= 500 {
			m.span.SetStatus(codes.Error, "server error")
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"event.name":      framesEventName,
		"event.domain":    framesEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesToFields(attrs),
	}
	if m.span != nil {
		sc := m.span.SpanContext()
		if sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		if sc.HasSpanID() {
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= 500:
		return "ERROR", 17
	case status >= 400:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
