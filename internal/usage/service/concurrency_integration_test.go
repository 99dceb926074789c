//go:build integration

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	"github.com/smallbiznis/htmlpdf/internal/migration"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	"github.com/smallbiznis/htmlpdf/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newPostgresLedger(t *testing.T) (usagedomain.Ledger, *gorm.DB) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("htmlpdf_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(25)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migration.RunMigrations(sqlDB))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledger := NewService(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		Clock:    clock.SystemClock{},
		Metering: config.NewStaticMeteringConfig(config.DefaultMeteringConfig()),
	})
	return ledger, conn
}

func TestConcurrentFreeRendersNeverOverspend(t *testing.T) {
	ledger, conn := newPostgresLedger(t)
	ctx := context.Background()
	const requests = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[usagedomain.Entitlement]int{}
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			renderID := fmt.Sprintf("render-%02d", i)

			_, err := ledger.InitMeteringState(ctx, "user_race")
			assert.NoError(t, err)
			assert.NoError(t, ledger.BeginRender(ctx, usagedomain.OutboxEntry{
				RenderID:    renderID,
				UserID:      "user_race",
				Entitlement: usagedomain.EntitlementFree,
			}))
			res, err := ledger.RecordEvent(ctx, usagedomain.RecordRequest{
				RenderID:    renderID,
				UserID:      "user_race",
				Entitlement: usagedomain.EntitlementFree,
			})
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			results[res.Entitlement]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, results[usagedomain.EntitlementFree])
	assert.Equal(t, 10, results[usagedomain.EntitlementPayPerUse])

	state, err := ledger.GetMeteringState(ctx, "user_race")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 10, state.FreeTierUsed)

	var logs int64
	require.NoError(t, conn.Model(&usagedomain.UsageLog{}).Where("user_id = ?", "user_race").Count(&logs).Error)
	assert.Equal(t, int64(requests), logs)
}
