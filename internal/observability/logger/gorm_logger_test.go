package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observedGormLogger(level gormlogger.LogLevel) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(GormLoggerConfig{
		Level:         level,
		SlowThreshold: 100 * time.Millisecond,
		Base:          zap.New(core),
	}), logs
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	l, logs := observedGormLogger(gormlogger.Warn)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM api_keys WHERE key_hash = $1`, 0
	}, gormlogger.ErrRecordNotFound)

	assert.Zero(t, logs.Len())
}

func TestGormLoggerErrorCarriesTableAndSQL(t *testing.T) {
	l, logs := observedGormLogger(gormlogger.Warn)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `UPDATE user_metering SET free_tier_used = free_tier_used + 1 WHERE user_id = $1`, 0
	}, errors.New("deadlock detected"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "UPDATE", fields["operation"])
	assert.Equal(t, "user_metering", fields["table"])
	assert.Contains(t, fields["sql"], "free_tier_used")
}

func TestGormLoggerSlowQueryOmitsSQL(t *testing.T) {
	l, logs := observedGormLogger(gormlogger.Warn)

	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return `INSERT INTO usage_logs (id, render_id) VALUES ($1, $2)`, 1
	}, nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "usage_logs", fields["table"])
	assert.NotContains(t, fields, "sql")
}

func TestDescribeSQL(t *testing.T) {
	op, table := describeSQL(`WITH recent AS (SELECT 1) SELECT count(*) FROM "usage_outbox" WHERE status = $1`)
	assert.Equal(t, "SELECT", op)
	assert.Equal(t, "usage_outbox", table)

	op, table = describeSQL(`DELETE FROM subscriptions WHERE id = $1`)
	assert.Equal(t, "DELETE", op)
	assert.Equal(t, "subscriptions", table)
}
