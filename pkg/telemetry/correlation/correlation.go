package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/studiosync/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
)

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	return obscontext.CorrelationIDFromContext(ctx)
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return obscontext.WithCorrelationID(ctx, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// InjectTrace adds the correlation and tracing identifiers of ctx to fields.
// Existing identifiers in fields are kept.
func InjectTrace(ctx context.Context, fields map[string]any) map[string]any {
	if fields == nil {
		fields = map[string]any{}
	}
	if _, ok := fields["correlation_id"]; !ok {
		if cid := ExtractCorrelationID(ctx); cid != "" {
			fields["correlation_id"] = cid
		}
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		if _, ok := fields["trace_id"]; !ok {
			fields["trace_id"] = sc.TraceID().String()
		}
		if _, ok := fields["span_id"]; !ok {
			fields["span_id"] = sc.SpanID().String()
		}
	}
	return fields
}

// ContextWithRemoteSpan seeds the context with a remote span if valid identifiers are provided.
func ContextWithRemoteSpan(ctx context.Context, traceIDHex, spanIDHex string) context.Context {
	if traceIDHex == "" || spanIDHex == "" {
		return ctx
	}

	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return ctx
	}

	parent := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true})
	return trace.ContextWithSpanContext(ctx, parent)
}
