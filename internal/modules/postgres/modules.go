package postgres

import (
	"context"
	"fmt"

	"signal_exec/internal/modules/config"
	"signal_exec/pkg/db"

	"go.uber.org/fx"
)

// Module поднимает пул pgx и отдаёт *db.PgTxManager.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN:      cfg.DB,
					MaxConns: cfg.DBMaxConns,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				m := db.NewPgTxManager(poolMaster)
				if err := m.Ping(ctx); err != nil {
					m.Close()
					return nil, err
				}

				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						m.Close()
						return nil
					},
				})
				return m, nil
			},
		),
	)
}
