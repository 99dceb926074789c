package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/observability/metrics"
	"github.com/smallbiznis/htmlpdf/internal/ratelimit"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobName        = "usage_reconcile"
	leaderLockKey  = "htmlpdf:usage:reconcile:leader"
	abandonMessage = "render did not complete"
)

type leaderLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Ledger  usagedomain.Ledger
	Repo    usagedomain.Repository
	Clock   clock.Clock
	Config  Config                 `optional:"true"`
	Locker  *ratelimit.Locker      `optional:"true"`
	Metrics *metrics.WorkerMetrics `optional:"true"`
}

// Worker replays renders whose usage write was lost and retires pending rows
// whose render never finished.
type Worker struct {
	db      *gorm.DB
	log     *zap.Logger
	ledger  usagedomain.Ledger
	repo    usagedomain.Repository
	clock   clock.Clock
	cfg     Config
	lock    leaderLock
	metrics *metrics.WorkerMetrics
}

// Stats reports one pass.
type Stats struct {
	Replayed  int
	Abandoned int
	Failed    int
}

func NewWorker(p Params) *Worker {
	w := &Worker{
		db:      p.DB,
		log:     p.Log.Named("usage.reconcile"),
		ledger:  p.Ledger,
		repo:    p.Repo,
		clock:   p.Clock,
		cfg:     p.Config.withDefaults(),
		metrics: p.Metrics,
	}
	if p.Locker != nil {
		w.lock = p.Locker
	}
	return w
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	expected := w.clock.Now().Add(w.cfg.PollInterval)
	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn("usage reconcile run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := w.clock.Now()
			if lag := now.Sub(expected); lag > 0 {
				w.metrics.ObserveRunLoopLag(lag)
			}
			expected = now.Add(w.cfg.PollInterval)
		}
	}
}

func (w *Worker) RunOnce(parentCtx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	var stats Stats
	if w.lock != nil {
		token, ok, err := w.lock.TryLock(ctx, leaderLockKey, w.cfg.LeaderTTL)
		if err != nil {
			return stats, err
		}
		if !ok {
			w.metrics.IncBatchDeferred(jobName, metrics.WorkerBatchDeferredReasonNotLeader)
			return stats, nil
		}
		defer func() {
			if err := w.lock.Release(context.Background(), leaderLockKey, token); err != nil {
				w.log.Warn("release reconcile leader lock", zap.Error(err))
			}
		}()
	}

	started := w.clock.Now()
	w.metrics.IncJobRun(jobName)
	defer func() { w.metrics.ObserveJobDuration(jobName, w.clock.Now().Sub(started)) }()

	if err := w.replayRendered(ctx, &stats); err != nil {
		w.observeError(ctx, err)
		return stats, err
	}
	if err := w.abandonPending(ctx, &stats); err != nil {
		w.observeError(ctx, err)
		return stats, err
	}

	if stats.Replayed > 0 || stats.Abandoned > 0 || stats.Failed > 0 {
		w.log.Info("usage reconcile pass",
			zap.Int("replayed", stats.Replayed),
			zap.Int("abandoned", stats.Abandoned),
			zap.Int("failed", stats.Failed),
		)
	}
	return stats, nil
}

func (w *Worker) replayRendered(ctx context.Context, stats *Stats) error {
	rows, err := w.listRendered(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		rowCtx, cancel := context.WithTimeout(ctx, w.cfg.RowTimeout)
		_, err := w.ledger.RecordEvent(rowCtx, usagedomain.RecordRequest{
			RenderID:    row.RenderID,
			UserID:      row.UserID,
			APIKeyID:    row.APIKeyID,
			Entitlement: row.Entitlement,
			CostCents:   row.CostCents,
		})
		cancel()
		if err != nil {
			stats.Failed++
			w.log.Warn("usage replay failed",
				zap.String("render_id", row.RenderID),
				zap.String("user_id", row.UserID),
				zap.Int("attempts", row.Attempts+1),
				zap.Error(err),
			)
			msg := err.Error()
			if markErr := w.repo.UpdateOutboxStatus(ctx, w.db, row.RenderID, usagedomain.OutboxStatusRendered, &msg, w.clock.Now()); markErr != nil {
				return markErr
			}
			continue
		}
		stats.Replayed++
	}
	w.metrics.AddBatchProcessed(jobName, string(usagedomain.OutboxStatusRendered), stats.Replayed)
	return nil
}

func (w *Worker) abandonPending(ctx context.Context, stats *Stats) error {
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := w.repo.LockOutbox(ctx, tx, w.filter(usagedomain.OutboxStatusPending, w.cfg.StaleAfter))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			w.metrics.IncBatchDeferred(jobName, metrics.WorkerBatchDeferredReasonSkipLockedEmpty)
			return nil
		}

		msg := abandonMessage
		now := w.clock.Now()
		for _, row := range rows {
			if err := w.repo.UpdateOutboxStatus(ctx, tx, row.RenderID, usagedomain.OutboxStatusAbandoned, &msg, now); err != nil {
				return err
			}
			stats.Abandoned++
		}
		return nil
	})
	if err != nil {
		stats.Abandoned = 0
		return err
	}
	w.metrics.AddBatchProcessed(jobName, string(usagedomain.OutboxStatusAbandoned), stats.Abandoned)
	return nil
}

// listRendered reads replay candidates without holding row locks. RecordEvent
// runs its own transaction per row, so a lock taken here would either be
// released before the replay or block it. Two replicas replaying the same
// render collide on the unique usage_logs.render_id and the second is a no-op.
func (w *Worker) listRendered(ctx context.Context) ([]usagedomain.OutboxEntry, error) {
	filter := w.filter(usagedomain.OutboxStatusRendered, w.cfg.RecordGrace)
	filter.SkipLocked = false
	return w.repo.LockOutbox(ctx, w.db, filter)
}

func (w *Worker) filter(status usagedomain.OutboxStatus, age time.Duration) usagedomain.OutboxFilter {
	return usagedomain.OutboxFilter{
		Status:        status,
		UpdatedBefore: w.clock.Now().Add(-age),
		Limit:         w.cfg.BatchSize,
		SkipLocked:    w.db.Dialector.Name() == "postgres",
	}
}

func (w *Worker) observeError(ctx context.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		w.metrics.IncJobTimeout(jobName)
	}
	w.metrics.IncJobError(jobName, err)
}
