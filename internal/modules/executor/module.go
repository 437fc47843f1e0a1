package executor

import (
	"context"
	"sync"

	brokerService "signal_exec/internal/modules/bybit_client/service"
	"signal_exec/internal/modules/config"
	"signal_exec/internal/modules/executor/service"
	storeService "signal_exec/internal/modules/job_store/service"
	obs "signal_exec/internal/modules/observability/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("executor",
		// 1. Адаптеры: конкретные реализации -> порты воркера
		fx.Provide(
			func(s *storeService.PgStore) service.JobStore { return s },
			func(s *storeService.SignalStore) service.SignalLookup { return s },
			func(c *brokerService.Client) service.Broker { return c },
		),

		// 2. Пул, reclaimer, цикл
		fx.Provide(
			func(cfg *config.Config, store service.JobStore, signals service.SignalLookup, broker service.Broker, sink obs.Sink) *service.Pool {
				return service.NewPool(store, signals, broker, sink, cfg.Worker.MaxParallel)
			},
			func(cfg *config.Config, store service.JobStore) *service.Reclaimer {
				return service.NewReclaimer(store, cfg.Worker.VisibilityTimeout)
			},
			func(cfg *config.Config, store service.JobStore, r *service.Reclaimer, p *service.Pool, sink obs.Sink) *service.Worker {
				return service.NewWorker(store, r, p, sink, service.Options{
					BatchLimit:   cfg.Worker.BatchLimit,
					PollInterval: cfg.Worker.PollInterval,
				})
			},
		),

		// 3. Запуск цикла через Lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, w *service.Worker) {
				var (
					cancel context.CancelFunc
					wg     sync.WaitGroup
				)
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						var ctx context.Context
						ctx, cancel = context.WithCancel(context.Background())
						wg.Add(1)
						go func() {
							defer wg.Done()
							_ = w.Run(ctx)
						}()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						cancel()
						done := make(chan struct{})
						go func() {
							wg.Wait()
							close(done)
						}()
						select {
						case <-done:
							return nil
						case <-ctx.Done():
							return ctx.Err()
						}
					},
				})
			},
		),
	)
}
