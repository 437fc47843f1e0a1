package service

import (
	"signal_exec/internal/modules/config"
	"signal_exec/pkg/logger"
	"signal_exec/pkg/tracing"

	"go.uber.org/zap"
)

// Init поднимает логгер и трейсер по конфигу. Должен отработать раньше
// конструкторов остальных модулей: они забирают logger.L() при создании.
func Init(cfg *config.Config) (func(), error) {
	logger.SetServiceName(cfg.Service.Name)
	tracing.SetServiceName(cfg.Service.Name)

	if err := logger.Init(cfg.LogLevel); err != nil {
		return nil, err
	}

	_, closeTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return nil, err
	}

	logger.L().Info("bootstrap done",
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("tracing", cfg.Tracing.Enabled),
		zap.String("network", string(cfg.Bybit.Network)),
		zap.Stringer("credentials", cfg.Bybit.Credentials),
		zap.Int("batch_limit", cfg.Worker.BatchLimit),
		zap.Int("max_parallel", cfg.Worker.MaxParallel),
		zap.Duration("visibility_timeout", cfg.Worker.VisibilityTimeout),
	)

	return func() {
		closeTracer()
		logger.Sync()
	}, nil
}
