package observability

import (
	"context"

	"signal_exec/internal/modules/observability/service"
	"signal_exec/pkg/logger"

	"go.uber.org/fx"
)

// Module собирает общий Sink: zap + prometheus + telegram.
func Module() fx.Option {
	return fx.Module("observability",
		fx.Provide(
			func(n service.ServiceNotifier) *service.TelegramSink {
				return service.NewTelegramSink(n, 64)
			},
			func(tg *service.TelegramSink) service.Sink {
				return service.Multi{
					service.NewZapSink(logger.L()),
					service.NewPromSink(),
					tg,
				}
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, tg *service.TelegramSink) {
			var cancel context.CancelFunc
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					var ctx context.Context
					ctx, cancel = context.WithCancel(context.Background())
					go tg.Run(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					tg.Stop()
					cancel()
					return nil
				},
			})
		}),
	)
}
