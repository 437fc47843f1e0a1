package bybit_client

import (
	"signal_exec/internal/modules/bybit_client/service"
	"signal_exec/internal/modules/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("bybit_client",
		fx.Provide(
			func(cfg *config.Config) *service.Client {
				return service.NewClient(cfg.Bybit)
			},
		),
	)
}
