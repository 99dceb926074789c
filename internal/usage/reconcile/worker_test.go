package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	"github.com/smallbiznis/htmlpdf/internal/migration"
	"github.com/smallbiznis/htmlpdf/internal/observability/metrics"
	"github.com/smallbiznis/htmlpdf/internal/ratelimit"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	"github.com/smallbiznis/htmlpdf/internal/usage/repository"
	"github.com/smallbiznis/htmlpdf/internal/usage/service"
	"github.com/smallbiznis/htmlpdf/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	worker *Worker
	ledger usagedomain.Ledger
	db     *gorm.DB
	clock  *clock.FakeClock
}

func newFixture(t *testing.T, locker *ratelimit.Locker) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	ledger := service.NewService(service.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repo,
		Clock:    clk,
		Metering: config.NewStaticMeteringConfig(config.DefaultMeteringConfig()),
	})

	worker := NewWorker(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Ledger:  ledger,
		Repo:    repo,
		Clock:   clk,
		Config:  DefaultConfig(),
		Locker:  locker,
		Metrics: metrics.NewWorkerMetricsForTest(prometheus.NewRegistry()),
	})
	return fixture{worker: worker, ledger: ledger, db: conn, clock: clk}
}

func (f fixture) seed(t *testing.T, renderID string, status usagedomain.OutboxStatus) {
	t.Helper()
	ctx := context.Background()

	_, err := f.ledger.InitMeteringState(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.ledger.BeginRender(ctx, usagedomain.OutboxEntry{
		RenderID:    renderID,
		UserID:      "user-1",
		Entitlement: usagedomain.EntitlementFree,
	}))
	if status != usagedomain.OutboxStatusPending {
		require.NoError(t, f.db.Model(&usagedomain.OutboxEntry{}).
			Where("render_id = ?", renderID).
			UpdateColumn("status", status).Error)
	}
}

func (f fixture) status(t *testing.T, renderID string) usagedomain.OutboxStatus {
	t.Helper()
	var entry usagedomain.OutboxEntry
	require.NoError(t, f.db.Where("render_id = ?", renderID).First(&entry).Error)
	return entry.Status
}

func TestRunOnceReplaysLostUsage(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "r-1", usagedomain.OutboxStatusRendered)

	stats, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Replayed, "row is still inside the grace period")

	f.clock.Advance(2 * time.Minute)
	stats, err = f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Replayed)
	assert.Equal(t, usagedomain.OutboxStatusRecorded, f.status(t, "r-1"))

	var logs []usagedomain.UsageLog
	require.NoError(t, f.db.Where("render_id = ?", "r-1").Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, usagedomain.EntitlementFree, logs[0].Entitlement)

	state, err := f.ledger.GetMeteringState(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.FreeTierUsed)
}

func TestRunOnceAbandonsStalePending(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "r-1", usagedomain.OutboxStatusPending)

	f.clock.Advance(11 * time.Minute)
	stats, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Abandoned)
	assert.Equal(t, usagedomain.OutboxStatusAbandoned, f.status(t, "r-1"))

	var count int64
	require.NoError(t, f.db.Model(&usagedomain.UsageLog{}).Count(&count).Error)
	assert.Zero(t, count, "abandoned renders are never billed")
}

func TestRunOnceLeavesTerminalRowsAlone(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "r-1", usagedomain.OutboxStatusFailed)
	f.seed(t, "r-2", usagedomain.OutboxStatusRecorded)

	f.clock.Advance(time.Hour)
	stats, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, usagedomain.OutboxStatusFailed, f.status(t, "r-1"))
	assert.Equal(t, usagedomain.OutboxStatusRecorded, f.status(t, "r-2"))
}

func TestRunOnceDefersWithoutLeadership(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)

	registry := prometheus.NewRegistry()
	f := newFixture(t, locker)
	f.worker.metrics = metrics.NewWorkerMetricsForTest(registry)
	f.seed(t, "r-1", usagedomain.OutboxStatusPending)
	f.clock.Advance(time.Hour)

	_, held, err := locker.TryLock(context.Background(), leaderLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	stats, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, usagedomain.OutboxStatusPending, f.status(t, "r-1"))

	count, err := testutil.GatherAndCount(registry, "htmlpdf_worker_batch_deferred_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunOnceLocksOnlyTheAbandonBatch(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	worker := NewWorker(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Repo:    repository.Provide(),
		Clock:   clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Config:  DefaultConfig(),
		Metrics: metrics.NewWorkerMetricsForTest(prometheus.NewRegistry()),
	})

	mock.ExpectQuery(`FROM usage_outbox\s+WHERE status = \$1 AND updated_at < \$2\s+ORDER BY updated_at ASC\s+LIMIT \$3$`).
		WithArgs(string(usagedomain.OutboxStatusRendered), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`LIMIT \$3 FOR UPDATE SKIP LOCKED`).
		WithArgs(string(usagedomain.OutboxStatusPending), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	stats, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFromAppConfigFillsDefaults(t *testing.T) {
	cfg := FromAppConfig(config.Config{Reconcile: config.ReconcileConfig{Enabled: true}})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, DefaultConfig().PollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultConfig().StaleAfter, cfg.StaleAfter)
}
