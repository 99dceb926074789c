package accountingmetrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	"github.com/smallbiznis/htmlpdf/internal/migration"
	subscriptiondomain "github.com/smallbiznis/htmlpdf/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	"github.com/smallbiznis/htmlpdf/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 15, 15, 30, 0, 0, time.UTC)

type recordingPusher struct {
	pushes int
	last   prometheus.Gatherer
}

func (p *recordingPusher) Push(_ context.Context, g prometheus.Gatherer) error {
	p.pushes++
	p.last = g
	return nil
}

func seed(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	logs := []struct {
		at          time.Time
		entitlement usagedomain.Entitlement
		cost        int
	}{
		{testNow.Add(-time.Hour), usagedomain.EntitlementFree, 0},
		{testNow.Add(-2 * time.Hour), usagedomain.EntitlementPayPerUse, 1},
		{testNow.Add(-3 * time.Hour), usagedomain.EntitlementPayPerUse, 1},
		{testNow.Add(-24 * time.Hour), usagedomain.EntitlementPayPerUse, 1},
	}
	for _, l := range logs {
		id := node.Generate()
		require.NoError(t, conn.Create(&usagedomain.UsageLog{
			ID: id, UserID: "user-1", RenderID: "r-" + id.String(), PDFGenerated: true,
			CostCents: l.cost, Entitlement: l.entitlement, CreatedAt: l.at,
		}).Error)
	}

	for i, status := range []usagedomain.OutboxStatus{
		usagedomain.OutboxStatusPending,
		usagedomain.OutboxStatusRendered,
		usagedomain.OutboxStatusRendered,
		usagedomain.OutboxStatusRecorded,
	} {
		require.NoError(t, conn.Create(&usagedomain.OutboxEntry{
			ID: node.Generate(), RenderID: "o-" + string(rune('a'+i)), UserID: "user-1",
			Entitlement: usagedomain.EntitlementFree, Status: status,
			CreatedAt: testNow, UpdatedAt: testNow,
		}).Error)
	}

	require.NoError(t, conn.Create(&subscriptiondomain.Subscription{
		ID: node.Generate(), UserID: "user-1", StripeCustomerID: "cus_1",
		Status: subscriptiondomain.SubscriptionStatusActive,
	}).Error)
	require.NoError(t, conn.Create(&subscriptiondomain.Subscription{
		ID: node.Generate(), UserID: "user-2", StripeCustomerID: "cus_2",
		Status: subscriptiondomain.SubscriptionStatusCanceled,
	}).Error)
	return conn
}

func TestTakeSnapshot(t *testing.T) {
	conn := seed(t)

	snap, err := TakeSnapshot(context.Background(), conn, testNow)
	require.NoError(t, err)

	assert.EqualValues(t, 1, snap.Renders[usagedomain.EntitlementFree])
	assert.EqualValues(t, 2, snap.Renders[usagedomain.EntitlementPayPerUse])
	assert.EqualValues(t, 0, snap.Renders[usagedomain.EntitlementSubscription])
	assert.EqualValues(t, 2, snap.CostCents[usagedomain.EntitlementPayPerUse])
	assert.EqualValues(t, 1, snap.Backlog[usagedomain.OutboxStatusPending])
	assert.EqualValues(t, 2, snap.Backlog[usagedomain.OutboxStatusRendered])
	assert.EqualValues(t, 1, snap.ActiveSubscriptions)
}

func TestExporterRunOnceAppliesSnapshot(t *testing.T) {
	conn := seed(t)
	pusher := &recordingPusher{}

	exp := NewExporter(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(testNow),
		Config: config.Config{AppName: "htmlpdf", Environment: "test"},
		Pusher: pusher,
	})
	require.NotNil(t, exp)
	require.NoError(t, exp.RunOnce(context.Background()))

	assert.Equal(t, 1, pusher.pushes)
	assert.Equal(t, 2.0, testutil.ToFloat64(exp.collectors.rendersToday.WithLabelValues("pay_per_use")))
	assert.Equal(t, 2.0, testutil.ToFloat64(exp.collectors.outboxBacklog.WithLabelValues("rendered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exp.collectors.activeSubscriptions))
	assert.Equal(t, float64(testNow.Unix()), testutil.ToFloat64(exp.collectors.lastSnapshot))
}

func TestNewExporterDisabledWithoutPusher(t *testing.T) {
	assert.Nil(t, NewExporter(Params{Log: zap.NewNop()}))
}

func TestNewPusher(t *testing.T) {
	base := config.Config{AppName: "htmlpdf", Environment: "test"}

	assert.Nil(t, NewPusher(base, zap.NewNop()))

	cfg := base
	cfg.Metrics = config.AccountingMetricsConfig{Enabled: true, Exporter: ExporterRemoteWrite}
	assert.Nil(t, NewPusher(cfg, zap.NewNop()), "endpoint required")

	cfg.Metrics.Endpoint = "not a url"
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))

	cfg.Metrics.Endpoint = "https://prom.example.com/api/v1/write"
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, zap.NewNop()))

	cfg.Metrics.Exporter = ExporterPushgateway
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, zap.NewNop()))

	cfg.Metrics.Exporter = "statsd"
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))
}

func TestRemoteWritePusherEncodesSeries(t *testing.T) {
	var got prompb.WriteRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(raw, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "htmlpdf_test_gauge"}, []string{"status"})
	registry.MustRegister(gauge)
	gauge.WithLabelValues("pending").Set(3)
	registry.MustRegister(prometheus.NewHistogram(prometheus.HistogramOpts{Name: "htmlpdf_test_histogram"}))

	pusher := NewRemoteWritePusher(srv.URL, "secret")
	pusher.now = func() time.Time { return testNow }
	require.NoError(t, pusher.Push(context.Background(), registry))

	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	require.Len(t, got.Timeseries, 1)
	series := got.Timeseries[0]
	require.Len(t, series.Labels, 2)
	assert.Equal(t, "__name__", series.Labels[0].Name)
	assert.Equal(t, "htmlpdf_test_gauge", series.Labels[0].Value)
	assert.Equal(t, "status", series.Labels[1].Name)
	assert.Equal(t, "pending", series.Labels[1].Value)
	require.Len(t, series.Samples, 1)
	assert.Equal(t, 3.0, series.Samples[0].Value)
	assert.Equal(t, testNow.UnixMilli(), series.Samples[0].Timestamp)
}

func TestRemoteWritePusherReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "htmlpdf_test_total"})
	registry.MustRegister(counter)
	counter.Inc()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), registry)
	assert.ErrorContains(t, err, "502")
}

func TestPushgatewayPusher(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "htmlpdf_test_gauge"})
	registry.MustRegister(gauge)

	pusher := NewPushgatewayPusher(srv.URL, "htmlpdf", map[string]string{"environment": "test", "empty": " "})
	require.NoError(t, pusher.Push(context.Background(), registry))
	assert.Equal(t, "/metrics/job/htmlpdf/environment/test", path)

	assert.Error(t, NewPushgatewayPusher(srv.URL, " ", nil).Push(context.Background(), registry))
}
