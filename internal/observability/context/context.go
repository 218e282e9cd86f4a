package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	runIDKey
	reportTypeKey
	correlationIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithRunID tags everything done on behalf of one import run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey)
}

func WithReportType(ctx context.Context, reportType string) context.Context {
	return context.WithValue(ctx, reportTypeKey, reportType)
}

func ReportTypeFromContext(ctx context.Context) string {
	return stringValue(ctx, reportTypeKey)
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
