package bootstrap

import (
	"context"

	bootstrap "signal_exec/internal/modules/bootstrap/service"
	"signal_exec/internal/modules/config"

	"go.uber.org/fx"
)

// Module подключать сразу после config.Module(): invoke'и дочерних
// модулей исполняются в порядке регистрации.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			closeFn, err := bootstrap.Init(cfg)
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeFn()
					return nil
				},
			})
			return nil
		}),
	)
}
