package main

import (
	"fmt"
	"strconv"
	"time"

	"signal_exec/internal/models"
	executorService "signal_exec/internal/modules/executor/service"
	obs "signal_exec/internal/modules/observability/service"
	"signal_exec/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const opTimeout = 30 * time.Second

func enqueueCmd(get func() *backend) *cobra.Command {
	var (
		id, signalID, symbol, side, qty, orderType, category, reason string
		price                                                        float64
		storeSignal                                                  bool
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add an execution job (embedded signal or --signal-id reference)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			be := get()
			ctx, cancel := withTimeout(cmd, opTimeout)
			defer cancel()

			nj := models.NewJob{ID: id, SignalID: signalID}
			if symbol != "" {
				s, err := models.ParseSide(side)
				if err != nil {
					return errors.Wrap(err, "parse --side")
				}
				sig := models.Signal{
					Symbol:    symbol,
					Side:      s,
					Qty:       qty,
					Price:     price,
					OrderType: models.OrderType(orderType),
					Category:  category,
					Reason:    reason,
					CreatedAt: time.Now().UTC(),
				}
				if err := sig.Validate(); err != nil {
					return err
				}

				if storeSignal {
					// сигнал в отдельную таблицу, джоб — ссылкой
					if sig.ID == "" {
						sig.ID = uuid.NewString()
					}
					if err := be.signals.PutSignal(ctx, sig); err != nil {
						return errors.Wrap(err, "store signal")
					}
					nj.SignalID = sig.ID
				} else {
					nj.Signal = &sig
				}
			}

			job, err := be.store.Enqueue(ctx, nj)
			if err != nil {
				return errors.Wrap(err, "enqueue")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", job.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&id, "id", "", "job id (uuid if empty)")
	f.StringVar(&signalID, "signal-id", "", "reference an already stored signal")
	f.StringVar(&symbol, "symbol", "", "instrument, e.g. BTCUSDT")
	f.StringVar(&side, "side", "buy", "buy|sell")
	f.StringVar(&qty, "qty", "", "order quantity")
	f.Float64Var(&price, "price", 0, "limit price / reference price")
	f.StringVar(&orderType, "type", string(models.OrderMarket), "Market|Limit")
	f.StringVar(&category, "category", "", "linear|spot|inverse (config default if empty)")
	f.StringVar(&reason, "reason", "manual", "free-form reason")
	f.BoolVar(&storeSignal, "store-signal", false, "store the signal separately and enqueue by reference")
	return cmd
}

func runOnceCmd(get func() *backend) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run one worker cycle: reclaim, claim, execute",
		RunE: func(cmd *cobra.Command, _ []string) error {
			be := get()
			cfg := be.cfg.Worker

			sink := obs.NewZapSink(logger.L())
			pool := executorService.NewPool(be.store, be.signals, be.broker, sink, cfg.MaxParallel)
			w := executorService.NewWorker(be.store,
				executorService.NewReclaimer(be.store, cfg.VisibilityTimeout),
				pool, sink,
				executorService.Options{BatchLimit: cfg.BatchLimit, PollInterval: cfg.PollInterval},
			)

			res, err := w.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed=%d claimed=%d ok=%d failed=%d unrecorded=%d deferred=%d\n",
				res.Reclaimed, res.Claimed, res.OK, res.Failed, res.Unrecorded, res.Deferred)
			return nil
		},
	}
}

func reclaimCmd(get func() *backend) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Return stale claimed jobs to pending",
		RunE: func(cmd *cobra.Command, _ []string) error {
			be := get()
			ctx, cancel := withTimeout(cmd, opTimeout)
			defer cancel()

			n, err := executorService.NewReclaimer(be.store, be.cfg.Worker.VisibilityTimeout).Reclaim(ctx)
			if err != nil {
				return errors.Wrap(err, "reclaim")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d\n", n)
			return nil
		},
	}
}

func statsCmd(get func() *backend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [job-id]",
		Short: "Show job counts by status, or one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			be := get()
			ctx, cancel := withTimeout(cmd, opTimeout)
			defer cancel()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				job, err := be.store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "id=%s status=%s attempt=%d", job.ID, job.Status, job.Attempt)
				if job.LastError != "" {
					fmt.Fprintf(out, " last_error=%s", strconv.Quote(job.LastError))
				}
				fmt.Fprintln(out)
				return nil
			}

			counts, err := be.store.CountByStatus(ctx)
			if err != nil {
				return errors.Wrap(err, "count jobs")
			}
			for _, st := range []models.JobStatus{models.JobPending, models.JobClaimed, models.JobCompleted, models.JobFailed} {
				fmt.Fprintf(out, "%s\t%d\n", st, counts[st])
			}
			return nil
		},
	}
	return cmd
}

func migrateCmd(get func() *backend) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create job store tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			be := get()
			if be.migrate == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to migrate")
				return nil
			}
			ctx, cancel := withTimeout(cmd, opTimeout)
			defer cancel()
			if err := be.migrate(ctx); err != nil {
				return errors.Wrap(err, "migrate")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrated")
			return nil
		},
	}
}
