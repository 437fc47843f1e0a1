package service

import (
	"context"
	"fmt"
	"time"

	"signal_exec/internal/models"
	obs "signal_exec/internal/modules/observability/service"
	"signal_exec/pkg/logger"

	"go.uber.org/zap"
)

type Options struct {
	BatchLimit   int
	PollInterval time.Duration
}

// BatchHook вызывается после каждого цикла (health, тесты).
type BatchHook func(res models.BatchResult, err error)

// Worker — цикл reclaim → claim → pool.
type Worker struct {
	store     JobStore
	reclaimer *Reclaimer
	pool      *Pool
	sink      obs.Sink
	opts      Options
	hooks     []BatchHook
	log       *zap.Logger
}

func NewWorker(store JobStore, reclaimer *Reclaimer, pool *Pool, sink obs.Sink, opts Options) *Worker {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 50
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if sink == nil {
		sink = obs.Nop{}
	}
	return &Worker{
		store:     store,
		reclaimer: reclaimer,
		pool:      pool,
		sink:      sink,
		opts:      opts,
		log:       logger.L().Named("worker"),
	}
}

func (w *Worker) OnBatch(h BatchHook) {
	w.hooks = append(w.hooks, h)
}

// RunOnce — один цикл. Ошибка стора прерывает цикл и возвращается наверх;
// состояние джобов при этом не портится.
func (w *Worker) RunOnce(ctx context.Context) (res models.BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
		if err != nil {
			w.sink.Emit(ctx, obs.Event{Stage: obs.StageCycleError, Message: err.Error()})
		}
		for _, h := range w.hooks {
			h(res, err)
		}
	}()

	reclaimed, err := w.reclaimer.Reclaim(ctx)
	if err != nil {
		return res, fmt.Errorf("reclaim stale: %w", err)
	}
	res.Reclaimed = reclaimed

	jobs, err := w.store.ClaimJobs(ctx, w.opts.BatchLimit)
	if err != nil {
		return res, fmt.Errorf("claim jobs: %w", err)
	}

	batch := w.pool.RunBatch(ctx, jobs)
	batch.Reclaimed = reclaimed
	res = batch

	w.sink.Emit(ctx, obs.Event{
		Stage:         obs.StageBatch,
		Message:       "batch done",
		RecycledCount: obs.Recycled(reclaimed),
		Claimed:       res.Claimed,
		OK:            res.OK,
		Failed:        res.Failed,
		Unrecorded:    res.Unrecorded,
		Deferred:      res.Deferred,
	})
	return res, nil
}

// Run крутит циклы до отмены ctx. Полная пачка — сразу следующий цикл,
// иначе ждём PollInterval.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started",
		zap.Int("batch_limit", w.opts.BatchLimit),
		zap.Duration("poll_interval", w.opts.PollInterval),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped")
			return nil
		case <-timer.C:
		}

		res, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Error("cycle failed", zap.Error(err))
		}

		next := w.opts.PollInterval
		if err == nil && res.Claimed >= w.opts.BatchLimit {
			next = 0
		}
		timer.Reset(next)
	}
}
