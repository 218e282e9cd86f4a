package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/studiosync/pkg/db"
)

func TestSchedulerMetricsClassifiesErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetrics(registry, Config{})

	m.IncJobError("import", context.DeadlineExceeded)
	m.IncJobError("import", &pgconn.PgError{Code: "40001"})
	m.IncJobError("import", errors.New("boom"))
	m.IncJobError("import", nil)

	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("import", db.ReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected deadline error, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("import", db.ReasonSerializationFailure)); got != 1 {
		t.Fatalf("expected serialization error, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("import", db.ReasonUnknown)); got != 1 {
		t.Fatalf("expected unknown error, got %v", got)
	}
}

func TestSchedulerMetricsRunsAndSkips(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetrics(registry, Config{})

	m.IncJobRun("import")
	m.IncJobSkipped("import", SkipReasonLockHeld)
	m.ObserveJobDuration("import", 2*time.Second)
	m.ObserveRunLoopLag(-time.Second)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("import")); got != 1 {
		t.Fatalf("expected 1 run, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobSkipped.WithLabelValues("import", SkipReasonLockHeld)); got != 1 {
		t.Fatalf("expected 1 skip, got %v", got)
	}
	if n := testutil.CollectAndCount(m.jobDuration); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
}
