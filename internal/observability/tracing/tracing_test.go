package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/studiosync/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSafeAttributesDropsCustomerData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("report_type", "orders"),
		attribute.String("customer_email", "a@example.test"),
		attribute.Int("rows", 10),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "customer_email" {
			t.Fatalf("customer_email must be dropped")
		}
	}
}

func TestSafeErrorHidesDetails(t *testing.T) {
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
	err := SafeError(errors.New("insert into customers values ('a@example.test')"))
	if err.Error() != "unknown" {
		t.Fatalf("expected classified reason, got %q", err.Error())
	}
	if got := SafeError(context.DeadlineExceeded).Error(); got != "deadline_exceeded" {
		t.Fatalf("expected deadline_exceeded, got %q", got)
	}
}

func newRecordingRouter(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware())
	return router, recorder
}

func TestGinMiddlewareRecordsRoute(t *testing.T) {
	router, recorder := newRecordingRouter(t)

	var seenReportType, seenCorrelationID string
	router.GET("/watermarks/:reportType", func(c *gin.Context) {
		seenReportType = obscontext.ReportTypeFromContext(c.Request.Context())
		seenCorrelationID = obscontext.CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/watermarks/Orders", nil)
	req.Header.Set(HeaderCorrelationID, "01HZX")
	router.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "HTTP GET /watermarks/:reportType" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
	if seenReportType != "orders" || seenCorrelationID != "01HZX" {
		t.Fatalf("expected context fields, got report_type=%q correlation_id=%q", seenReportType, seenCorrelationID)
	}

	found := false
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "report_type" && attr.Value.AsString() == "orders" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected report_type attribute on %v", spans[0].Attributes())
	}
}

func TestGinMiddlewareSkipsScrapes(t *testing.T) {
	router, recorder := newRecordingRouter(t)
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if n := len(recorder.Ended()); n != 0 {
		t.Fatalf("expected no spans, got %d", n)
	}
}
