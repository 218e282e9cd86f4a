package metricspush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/studiosync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func testRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "studiosync_import_rows_total"}, []string{"entity"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "studiosync_import_run_duration_seconds"})
	registry.MustRegister(rows, duration)
	rows.WithLabelValues("orders").Add(4)
	duration.Observe(1)
	return registry
}

func TestRemoteWritePusherSendsCounters(t *testing.T) {
	var got prompb.WriteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		payload, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(payload, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	pusher := NewRemoteWritePusher(server.URL, " secret ")
	pusher.now = func() time.Time { return time.UnixMilli(1700000000000) }
	require.NoError(t, pusher.Push(context.Background(), testRegistry()))

	require.Len(t, got.Timeseries, 1, "histograms are not sent over remote_write")
	series := got.Timeseries[0]
	assert.Equal(t, "__name__", series.Labels[0].Name)
	assert.Equal(t, "studiosync_import_rows_total", series.Labels[0].Value)
	assert.Equal(t, 4.0, series.Samples[0].Value)
	assert.Equal(t, int64(1700000000000), series.Samples[0].Timestamp)
}

func TestRemoteWritePusherReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewRemoteWritePusher(server.URL, "").Push(context.Background(), testRegistry())
	require.Error(t, err)
}

func TestPushgatewayPusherPutsGroup(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pusher := NewPushgatewayPusher(server.URL, "studiosync", map[string]string{"environment": "test", "blank": " "})
	require.NoError(t, pusher.Push(context.Background(), testRegistry()))
	assert.Equal(t, "/metrics/job/studiosync/environment/test", path)
}

func TestNewPusherFromConfig(t *testing.T) {
	cfg := config.Config{AppName: "studiosync"}
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))

	cfg.MetricsPush = config.MetricsPushConfig{Enabled: true, Exporter: ExporterPushgateway}
	assert.Nil(t, NewPusher(cfg, zap.NewNop()), "endpoint is required")

	cfg.MetricsPush.Endpoint = "http://pushgateway:9091"
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, zap.NewNop()))

	cfg.MetricsPush.Exporter = ExporterRemoteWrite
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, zap.NewNop()))

	cfg.MetricsPush.Exporter = "statsd"
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))
}
