package accountingmetrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultInterval = 5 * time.Minute
	snapshotTimeout = 10 * time.Second
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
	Pusher Pusher `optional:"true"`
}

// Exporter snapshots the accounting tables into its own registry and
// pushes the registry on every tick.
type Exporter struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	pusher     Pusher
	interval   time.Duration
	registry   *prometheus.Registry
	collectors *collectors
	failing    atomic.Bool
}

// NewExporter returns nil when export is disabled or misconfigured.
func NewExporter(p Params) *Exporter {
	if p.Pusher == nil {
		return nil
	}
	interval := p.Config.Metrics.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	registry := prometheus.NewRegistry()
	return &Exporter{
		db:       p.DB,
		log:      p.Log.Named("accountingmetrics"),
		clock:    p.Clock,
		pusher:   p.Pusher,
		interval: interval,
		registry: registry,
		collectors: newCollectors(registry, prometheus.Labels{
			"service":     p.Config.AppName,
			"environment": p.Config.Environment,
		}),
	}
}

// Registry exposes the accounting series for scraping and tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// RunOnce takes one snapshot and pushes it.
func (e *Exporter) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	snap, err := TakeSnapshot(ctx, e.db, e.clock.Now())
	if err != nil {
		return err
	}
	e.collectors.apply(snap)
	return e.pusher.Push(ctx, e.registry)
}

func (e *Exporter) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ticker.C:
			e.tick(ctx)
		case <-ctx.Done():
			e.log.Info("stopping accounting metrics exporter")
			return
		}
	}
}

// tick logs the first failure of a streak and the recovery after it.
func (e *Exporter) tick(ctx context.Context) {
	if err := e.RunOnce(ctx); err != nil {
		if e.failing.CompareAndSwap(false, true) {
			e.log.Warn("accounting metrics export failed", zap.Error(err))
		}
		return
	}
	if e.failing.CompareAndSwap(true, false) {
		e.log.Info("accounting metrics export recovered")
	}
}
