package correlation

import (
	"context"
	"testing"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "fixed")
	ctx, cid := EnsureCorrelationID(ctx)
	if cid != "fixed" || ExtractCorrelationID(ctx) != "fixed" {
		t.Fatalf("expected existing correlation id, got %q", cid)
	}
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	if len(cid) != 26 {
		t.Fatalf("expected ulid, got %q", cid)
	}
	if ExtractCorrelationID(ctx) != cid {
		t.Fatalf("expected id on context")
	}
}

func TestInjectTraceWithRemoteSpan(t *testing.T) {
	ctx := ContextWithRemoteSpan(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")
	ctx = ContextWithCorrelationID(ctx, "cid")

	fields := InjectTrace(ctx, map[string]any{"correlation_id": "kept"})
	if fields["correlation_id"] != "kept" {
		t.Fatalf("expected existing correlation id to be kept, got %v", fields["correlation_id"])
	}
	if fields["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected trace id %v", fields["trace_id"])
	}
	if fields["span_id"] != "00f067aa0ba902b7" {
		t.Fatalf("unexpected span id %v", fields["span_id"])
	}
}
