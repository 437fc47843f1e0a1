package job_store

import (
	"context"

	"signal_exec/internal/modules/config"
	"signal_exec/internal/modules/job_store/service"
	"signal_exec/pkg/db"

	"go.uber.org/fx"
)

// Module отдаёт postgres-стор джобов и lookup сигналов; схема накатывается на старте.
func Module() fx.Option {
	return fx.Module("job_store",
		fx.Provide(
			func(tm *db.PgTxManager) db.TxManager { return tm },
			func(tm db.TxManager, cfg *config.Config) *service.PgStore {
				return service.NewPgStore(tm, service.Options{MaxAttempts: cfg.Worker.MaxAttempts})
			},
			service.NewSignalStore,
		),
		fx.Invoke(func(lc fx.Lifecycle, tm db.TxManager) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return service.Migrate(ctx, tm.Conn())
				},
			})
		}),
	)
}
