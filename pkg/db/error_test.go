package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pgx", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pgx other code", err: &pgconn.PgError{Code: "40001"}, want: false},
		{name: "pq", err: &pq.Error{Code: "23505"}, want: true},
		{name: "mysql", err: errors.New("Error 1062: Duplicate entry"), want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: usage_logs.render_id"), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}

type recordingPool struct {
	idle, open        int
	lifetime, idleFor time.Duration
}

func (r *recordingPool) SetMaxIdleConns(n int)              { r.idle = n }
func (r *recordingPool) SetMaxOpenConns(n int)              { r.open = n }
func (r *recordingPool) SetConnMaxLifetime(d time.Duration) { r.lifetime = d }
func (r *recordingPool) SetConnMaxIdleTime(d time.Duration) { r.idleFor = d }

func TestApplyPoolSkipsZeroValues(t *testing.T) {
	pool := &recordingPool{}
	applyPool(Config{MaxOpenConn: 20, ConnMaxLifetime: 300}, pool)

	assert.Equal(t, 0, pool.idle)
	assert.Equal(t, 20, pool.open)
	assert.Equal(t, 5*time.Minute, pool.lifetime)
	assert.Equal(t, time.Duration(0), pool.idleFor)
}
