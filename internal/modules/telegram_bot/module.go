package telegram

import (
	"context"

	storeService "signal_exec/internal/modules/job_store/service"
	obs "signal_exec/internal/modules/observability/service"
	"signal_exec/internal/modules/telegram_bot/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("telegram",
		// 1. Источник /stats
		fx.Provide(
			func(s *storeService.PgStore) service.StatsReader { return s },
		),

		// 2. Сервис Telegram как *service.Telegram
		fx.Provide(
			service.NewTelegram,
		),

		// 3. Адаптер: *service.Telegram -> obs.ServiceNotifier
		fx.Provide(
			func(t *service.Telegram) obs.ServiceNotifier {
				return t
			},
		),
		// Запуск основного цикла через Lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram) {
				var cancel context.CancelFunc
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						var ctx context.Context
						ctx, cancel = context.WithCancel(context.Background())
						go t.Start(ctx)
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
