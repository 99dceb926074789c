package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/smallbiznis/htmlpdf/internal/analytics/domain"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	"github.com/smallbiznis/htmlpdf/internal/migration"
	subscriptionrepo "github.com/smallbiznis/htmlpdf/internal/subscription/repository"
	subscriptionsvc "github.com/smallbiznis/htmlpdf/internal/subscription/service"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	usagerepo "github.com/smallbiznis/htmlpdf/internal/usage/repository"
	usagesvc "github.com/smallbiznis/htmlpdf/internal/usage/service"
	"github.com/smallbiznis/htmlpdf/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    analyticsdomain.Service
	ledger usagedomain.Ledger
	subs   *subscriptionsvc.Service
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	clk := clock.NewFakeClock(testNow)
	metering := config.NewStaticMeteringConfig(config.DefaultMeteringConfig())
	ledger := usagesvc.NewService(usagesvc.Params{DB: conn, Log: log, GenID: node, Repo: usagerepo.Provide(), Clock: clk, Metering: metering})
	subs := subscriptionsvc.New(subscriptionsvc.Params{DB: conn, Log: log, GenID: node, Repo: subscriptionrepo.Provide(), Clock: clk})

	return fixture{
		svc: New(Params{
			DB:              conn,
			Log:             log,
			Ledger:          ledger,
			SubscriptionSvc: subs,
			Clock:           clk,
			Metering:        metering,
		}),
		ledger: ledger,
		subs:   subs.(*subscriptionsvc.Service),
		db:     conn,
		node:   node,
		clock:  clk,
	}
}

func (f fixture) log(t *testing.T, userID string, at time.Time, cost int) {
	t.Helper()
	entitlement := usagedomain.EntitlementFree
	if cost > 0 {
		entitlement = usagedomain.EntitlementPayPerUse
	}
	id := f.node.Generate()
	require.NoError(t, f.db.Create(&usagedomain.UsageLog{
		ID:           id,
		UserID:       userID,
		RenderID:     "r-" + id.String(),
		PDFGenerated: true,
		CostCents:    cost,
		Entitlement:  entitlement,
		CreatedAt:    at,
	}).Error)
}

func TestUsageAggregatesByDay(t *testing.T) {
	f := newFixture(t)

	f.log(t, "user-1", testNow.Add(-1*time.Hour), 0)
	f.log(t, "user-1", testNow.Add(-2*time.Hour), 1)
	f.log(t, "user-1", testNow.AddDate(0, 0, -3), 1)
	f.log(t, "user-1", testNow.AddDate(0, 0, -40), 1)
	f.log(t, "user-2", testNow.Add(-1*time.Hour), 1)

	report, err := f.svc.Usage(context.Background(), "user-1", 0)
	require.NoError(t, err)

	assert.Equal(t, analyticsdomain.DefaultDays, report.Period.Days)
	assert.True(t, report.Period.StartDate.Equal(testNow.AddDate(0, 0, -30)))
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.TotalCost)
	assert.Equal(t, analyticsdomain.DailyUsage{Count: 2, Cost: 1}, report.Daily["2026-03-31"])
	assert.Equal(t, analyticsdomain.DailyUsage{Count: 1, Cost: 1}, report.Daily["2026-03-28"])
	assert.Len(t, report.Daily, 2)
}

func TestUsageRejectsDays(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Usage(context.Background(), "user-1", -1)
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidDays)
	_, err = f.svc.Usage(context.Background(), "user-1", analyticsdomain.MaxDays+1)
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidDays)
	_, err = f.svc.Usage(context.Background(), " ", 7)
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidUser)
}

func TestStatusIsReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, status.FreeTierUsed)
	assert.Equal(t, 10, status.FreeTierRemaining)
	assert.Nil(t, status.FreeTierResetAt)
	assert.Equal(t, "none", status.SubscriptionStatus)

	state, err := f.ledger.GetMeteringState(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestStatusReportsWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.InitMeteringState(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.ledger.IncrementFreeTierUsage(ctx, "user-1"))
	require.NoError(t, f.ledger.IncrementFreeTierUsage(ctx, "user-1"))
	_, err = f.subs.EnsureCustomer(ctx, "user-1", "cus_123")
	require.NoError(t, err)

	status, err := f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, status.FreeTierUsed)
	assert.Equal(t, 8, status.FreeTierRemaining)
	require.NotNil(t, status.FreeTierResetAt)
	assert.True(t, status.FreeTierResetAt.Equal(testNow.AddDate(0, 0, 30)))
	assert.False(t, status.WindowExpired)
	assert.Equal(t, "incomplete", status.SubscriptionStatus)

	f.clock.Advance(31 * 24 * time.Hour)
	status, err = f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, status.WindowExpired)
	assert.Zero(t, status.FreeTierUsed)

	state, err := f.ledger.GetMeteringState(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, state.FreeTierUsed)
}
