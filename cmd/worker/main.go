package main

import (
	"context"
	"log"

	"signal_exec/internal/modules/bootstrap"
	"signal_exec/internal/modules/bybit_client"
	"signal_exec/internal/modules/bybit_websocket"
	"signal_exec/internal/modules/config"
	"signal_exec/internal/modules/executor"
	executorService "signal_exec/internal/modules/executor/service"
	"signal_exec/internal/modules/health"
	healthService "signal_exec/internal/modules/health/service"
	"signal_exec/internal/modules/job_store"
	"signal_exec/internal/modules/observability"
	"signal_exec/internal/modules/postgres"
	telegram "signal_exec/internal/modules/telegram_bot"

	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		bootstrap.Module(),
		postgres.Module(),
		job_store.Module(),
		bybit_client.Module(),
		health.Module(),
		telegram.Module(),
		observability.Module(),
		executor.Module(),
		bybit_websocket.Module(),

		// readiness по первому успешному циклу
		fx.Invoke(func(w *executorService.Worker, s *healthService.State) {
			w.OnBatch(s.RecordBatch)
		}),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
