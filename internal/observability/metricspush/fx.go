package metricspush

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/erpcore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, cfg config.Config, pusher Pusher, logger *zap.Logger) {
	if pusher == nil {
		return
	}
	interval := time.Duration(cfg.MetricsPush.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	w := newWorker(pusher, prometheus.DefaultGatherer, interval, logger.Named("metrics.push"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.log.Info("starting metrics push worker",
				zap.String("exporter", cfg.MetricsPush.Exporter),
				zap.Duration("interval", interval),
			)
			go func() {
				defer close(done)
				w.run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			// Flush what accumulated since the last tick.
			w.pushOnce(stopCtx)
			return nil
		},
	})
}

type worker struct {
	pusher   Pusher
	gatherer prometheus.Gatherer
	interval time.Duration
	log      *zap.Logger
}

func newWorker(pusher Pusher, gatherer prometheus.Gatherer, interval time.Duration, log *zap.Logger) *worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &worker{pusher: pusher, gatherer: gatherer, interval: interval, log: log}
}

func (w *worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.pushOnce(ctx)
	for {
		select {
		case <-ticker.C:
			w.pushOnce(ctx)
		case <-ctx.Done():
			w.log.Info("stopping metrics push worker")
			return
		}
	}
}

func (w *worker) pushOnce(ctx context.Context) {
	if err := w.pusher.Push(ctx, w.gatherer); err != nil && ctx.Err() == nil {
		w.log.Warn("metrics push failed", zap.Error(err))
	}
}
