package main

import (
	"context"
	"io"
	"strings"
	"time"

	"signal_exec/internal/models"
	"signal_exec/internal/modules/bybit_client/service"
	"signal_exec/internal/modules/config"
	executorService "signal_exec/internal/modules/executor/service"
	storeService "signal_exec/internal/modules/job_store/service"
	"signal_exec/pkg/db"
	"signal_exec/pkg/logger"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// jobStore — операторские операции поверх четырёх атомарных.
type jobStore interface {
	executorService.JobStore
	Enqueue(ctx context.Context, nj models.NewJob) (models.ExecutionJob, error)
	Get(ctx context.Context, id string) (models.ExecutionJob, error)
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

type signalStore interface {
	executorService.SignalLookup
	PutSignal(ctx context.Context, sig models.Signal) error
}

// backend — всё, что нужно командам; в тестах подменяется in-memory.
type backend struct {
	cfg     *config.Config
	store   jobStore
	signals signalStore
	broker  executorService.Broker
	migrate func(ctx context.Context) error
	close   func()
}

type opener func(ctx context.Context, v *viper.Viper) (*backend, error)

// openPostgres собирает backend на postgres по конфигу + флагам.
func openPostgres(ctx context.Context, v *viper.Viper) (*backend, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	if cfg.DB == "" {
		return nil, errors.New("database dsn is empty: set --dsn or DATABASE_DSN")
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, errors.Wrap(err, "open pool")
	}
	tm := db.NewPgTxManager(pool)
	if err := tm.Ping(ctx); err != nil {
		tm.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return &backend{
		cfg:     cfg,
		store:   storeService.NewPgStore(tm, storeService.Options{MaxAttempts: cfg.Worker.MaxAttempts}),
		signals: storeService.NewSignalStore(tm),
		broker:  service.NewClient(cfg.Bybit),
		migrate: func(ctx context.Context) error { return storeService.Migrate(ctx, tm.Conn()) },
		close:   tm.Close,
	}, nil
}

// loadConfig: yaml/env через config.NewConfig, поверх — флаги/env из viper.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if dsn := v.GetString("dsn"); dsn != "" {
		cfg.DB = dsn
	}
	if n := v.GetInt("batch-limit"); n > 0 {
		cfg.Worker.BatchLimit = n
	}
	if n := v.GetInt("max-parallel"); n > 0 {
		cfg.Worker.MaxParallel = n
	}
	if d := v.GetDuration("visibility"); d > 0 {
		cfg.Worker.VisibilityTimeout = d
	}
	if lvl := v.GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("JOBCTL")
	v.AutomaticEnv()

	var be *backend

	root := &cobra.Command{
		Use:           "jobctl",
		Short:         "Operator CLI for the signal execution job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.SetServiceName("jobctl")
			if err := logger.Init(v.GetString("log-level")); err != nil {
				return err
			}
			b, err := open(cmd.Context(), v)
			if err != nil {
				return err
			}
			be = b
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if be != nil && be.close != nil {
				be.close()
			}
			logger.Sync()
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	flags := root.PersistentFlags()
	flags.String("dsn", "", "postgres dsn (env DATABASE_DSN)")
	flags.Int("batch-limit", 0, "jobs claimed per cycle")
	flags.Int("max-parallel", 0, "jobs executed concurrently")
	flags.Duration("visibility", 0, "visibility timeout for claimed jobs, e.g. 60s")
	flags.String("log-level", "warn", "log level")
	for _, name := range []string{"dsn", "batch-limit", "max-parallel", "visibility", "log-level"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	_ = v.BindEnv("dsn", "DATABASE_DSN", "JOBCTL_DSN")

	get := func() *backend { return be }
	root.AddCommand(
		enqueueCmd(get),
		runOnceCmd(get),
		reclaimCmd(get),
		statsCmd(get),
		migrateCmd(get),
	)
	return root
}

func withTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}
