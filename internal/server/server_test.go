package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studiosync/internal/clock"
	"github.com/smallbiznis/studiosync/internal/config"
	"github.com/smallbiznis/studiosync/internal/migration"
	pipelinedomain "github.com/smallbiznis/studiosync/internal/pipeline/domain"
	"github.com/smallbiznis/studiosync/internal/reporting"
	reportingdomain "github.com/smallbiznis/studiosync/internal/reporting/domain"
	reportingrepo "github.com/smallbiznis/studiosync/internal/reporting/repository"
	watermarkrepo "github.com/smallbiznis/studiosync/internal/watermark/repository"
	watermarkservice "github.com/smallbiznis/studiosync/internal/watermark/service"
	"github.com/smallbiznis/studiosync/pkg/db"
	"github.com/smallbiznis/studiosync/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePipeline struct {
	lastPage pagination.Pagination
}

func (f *fakePipeline) Run(context.Context, string) (pipelinedomain.RunSummary, error) {
	return pipelinedomain.RunSummary{}, nil
}

func (f *fakePipeline) RecentRuns(_ context.Context, page pagination.Pagination) (pipelinedomain.ListRunsResponse, error) {
	f.lastPage = page
	return pipelinedomain.ListRunsResponse{
		Runs:     []pipelinedomain.ImportRun{{ID: 7, Trigger: pipelinedomain.TriggerScheduled, Status: pipelinedomain.StatusSucceeded}},
		PageInfo: pagination.PageInfo{HasMore: true, NextPageToken: "next"},
	}, nil
}

type testServer struct {
	srv        *Server
	pipeline   *fakePipeline
	store      *reporting.Store
	watermarks *watermarkservice.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.Apply(conn))

	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC))
	floor := config.DefaultImportConfig().Floor()
	watermarks := watermarkservice.NewService(conn, watermarkrepo.Provide(), fakeClock, func() time.Time { return floor }, zap.NewNop())
	store := reporting.NewStore(conn, reportingrepo.Provide())
	pipeline := &fakePipeline{}

	registry := prometheus.NewRegistry()
	probe := prometheus.NewCounter(prometheus.CounterOpts{Name: "studiosync_test_probe_total"})
	registry.MustRegister(probe)
	probe.Inc()

	srv := NewServer(Params{
		Config:     config.Config{AppName: "studiosync"},
		DB:         conn,
		Log:        zap.NewNop(),
		Registry:   registry,
		Watermarks: watermarks,
		Pipeline:   pipeline,
		Store:      store,
	})
	return &testServer{srv: srv, pipeline: pipeline, store: store, watermarks: watermarks}
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = ts.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "studiosync_test_probe_total 1"))
}

func TestWatermarkRoutes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.watermarks.Advance(ctx, "orders", time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), 3, nil))

	rec := ts.get(t, "/watermarks")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["watermarks"].([]any)
	assert.Len(t, items, 1)

	rec = ts.get(t, "/watermarks/orders/window")
	require.Equal(t, http.StatusOK, rec.Code)
	window := decode(t, rec)
	assert.Equal(t, "2026-02-09T00:00:00Z", window["start"])
	assert.Equal(t, true, window["overlap"])

	rec = ts.get(t, "/watermarks/revenue/window")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.get(t, "/watermarks/passes")
	assert.Equal(t, http.StatusNotFound, rec.Code, "never fetched")

	rec = ts.get(t, "/watermarks/invoices/window")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "validation_error", errBody["type"])
}

func TestListRunsPassesPagination(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get(t, "/runs?limit=5&page_token=abc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, ts.pipeline.lastPage.PageSize)
	assert.Equal(t, "abc", ts.pipeline.lastPage.PageToken)

	body := decode(t, rec)
	assert.Equal(t, "next", body["next_page_token"])
	assert.Len(t, body["runs"], 1)

	rec = ts.get(t, "/runs?page_size=ten")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRevenueByMonth(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	totals := []reportingdomain.RevenueCategoryTotal{
		{Month: "2026-02", Category: "Classes", Revenue: decimal.RequireFromString("100"), NetRevenue: decimal.RequireFromString("90")},
		{Month: "2026-03", Category: "Retail", Revenue: decimal.RequireFromString("5"), NetRevenue: decimal.RequireFromString("5")},
	}
	_, err := ts.store.Repo.ReplaceRevenueTotals(ctx, ts.store.DB(), totals, 100)
	require.NoError(t, err)

	rec := ts.get(t, "/revenue?month=2026-02")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode(t, rec)["totals"].([]any)
	require.Len(t, rows, 1)

	rec = ts.get(t, "/revenue")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["totals"], 2)

	rec = ts.get(t, "/revenue?month=february")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
