package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/studiosync/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const HeaderCorrelationID = "X-Correlation-Id"

// Scrapes and probes hit these every few seconds and would drown the status
// API spans.
var untracedRoutes = map[string]struct{}{
	"/metrics": {},
	"/healthz": {},
}

// GinMiddleware traces status API requests. A :reportType route parameter and
// an X-Correlation-Id header are carried on the context and the span, so a
// request can be joined to the import run it inspects.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("studiosync/http")
	return func(c *gin.Context) {
		if _, skip := untracedRoutes[c.FullPath()]; skip {
			c.Next()
			return
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		if cid := strings.TrimSpace(c.GetHeader(HeaderCorrelationID)); cid != "" {
			ctx = obscontext.WithCorrelationID(ctx, cid)
		}
		attrs := []attribute.KeyValue{attribute.String("http.method", c.Request.Method)}
		if reportType := strings.ToLower(strings.TrimSpace(c.Param("reportType"))); reportType != "" {
			ctx = obscontext.WithReportType(ctx, reportType)
			attrs = append(attrs, attribute.String("report_type", reportType))
		}

		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(SafeAttributes(attrs...)...),
		)
		defer span.End()

		requestID := obscontext.RequestIDFromContext(ctx)
		if requestID == "" {
			requestID = strings.TrimSpace(c.GetHeader("X-Request-Id"))
		}
		if requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}
