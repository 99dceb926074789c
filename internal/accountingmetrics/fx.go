package accountingmetrics

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("accounting.metrics",
	fx.Provide(NewPusher),
	fx.Provide(NewExporter),
	fx.Invoke(runExporter),
)

func runExporter(lc fx.Lifecycle, e *Exporter, log *zap.Logger) {
	if e == nil {
		log.Info("accounting metrics export disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting accounting metrics exporter")
			go func() {
				defer close(done)
				e.run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
