package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"signal_exec/internal/models"
	obs "signal_exec/internal/modules/observability/service"
	"signal_exec/pkg/logger"
	"signal_exec/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Pool исполняет пачку claimed-джобов, держа в полёте не больше maxParallel.
// Повторов внутри пачки нет: любая ошибка — failJob для этой попытки.
type Pool struct {
	store       JobStore
	signals     SignalLookup
	broker      Broker
	sink        obs.Sink
	maxParallel int
	log         *zap.Logger
}

func NewPool(store JobStore, signals SignalLookup, broker Broker, sink obs.Sink, maxParallel int) *Pool {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	if sink == nil {
		sink = obs.Nop{}
	}
	return &Pool{
		store:       store,
		signals:     signals,
		broker:      broker,
		sink:        sink,
		maxParallel: maxParallel,
		log:         logger.L().Named("pool"),
	}
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeFailed
	outcomeUnrecorded
)

// RunBatch ждёт завершения всех запущенных джобов пачки и возвращает счётчики.
// После отмены ctx новые джобы не запускаются и остаются claimed до reclaim;
// уже запущенные доводятся до конца без отмены.
func (p *Pool) RunBatch(ctx context.Context, jobs []models.ExecutionJob) models.BatchResult {
	res := models.BatchResult{Claimed: len(jobs)}
	if len(jobs) == 0 {
		return res
	}

	sem := semaphore.NewWeighted(int64(p.maxParallel))
	var (
		wg                     sync.WaitGroup
		ok, failed, unrecorded atomic.Int64
	)

	for i, job := range jobs {
		// слот ждём без отмены: освободится, когда доработает один из запущенных
		_ = sem.Acquire(context.WithoutCancel(ctx), 1)
		if ctx.Err() != nil {
			sem.Release(1)
			res.Deferred = len(jobs) - i
			p.log.Info("batch interrupted, jobs left claimed", zap.Int("deferred", res.Deferred))
			break
		}

		wg.Add(1)
		go func(job models.ExecutionJob) {
			defer wg.Done()
			defer sem.Release(1)

			switch p.process(context.WithoutCancel(ctx), job) {
			case outcomeOK:
				ok.Add(1)
			case outcomeFailed:
				failed.Add(1)
			default:
				unrecorded.Add(1)
			}
		}(job)
	}
	wg.Wait()

	res.OK = int(ok.Load())
	res.Failed = int(failed.Load())
	res.Unrecorded = int(unrecorded.Load())
	return res
}

func (p *Pool) process(ctx context.Context, job models.ExecutionJob) (out outcome) {
	span, ctx := tracing.StartSpan(ctx, "job.execute", opentracing.Tags{
		"job.id":      job.ID,
		"job.attempt": job.Attempt,
	})

	var execErr error
	defer func() {
		if r := recover(); r != nil {
			execErr = fmt.Errorf("panic: %v", r)
			p.log.Error("job panic", zap.String("job_id", job.ID), zap.Any("panic", r))
			out = p.fail(ctx, job, execErr)
		}
		tracing.Finish(span, execErr)
	}()

	execErr = p.execute(ctx, job)
	if execErr != nil {
		return p.fail(ctx, job, execErr)
	}

	if err := p.store.CompleteJob(ctx, job.ID); err != nil {
		// ордер уже ушёл; джоб останется claimed и вернётся через reclaim
		execErr = err
		p.storeError(ctx, job, "order placed, complete not recorded: "+err.Error())
		return outcomeUnrecorded
	}
	return outcomeOK
}

func (p *Pool) execute(ctx context.Context, job models.ExecutionJob) error {
	sig, err := p.resolve(ctx, job)
	if err != nil {
		return err
	}
	order, err := p.broker.Execute(ctx, sig)
	if err != nil {
		return err
	}
	p.log.Info("order placed",
		zap.String("job_id", job.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("order_id", order.OrderID),
		zap.Float64("fill_price", order.FillPrice),
	)
	return nil
}

// resolve: встроенный payload приоритетнее lookup'а по signalId.
func (p *Pool) resolve(ctx context.Context, job models.ExecutionJob) (models.Signal, error) {
	if job.Signal != nil {
		return *job.Signal, nil
	}
	if job.SignalID == "" {
		if job.LastError != "" {
			return models.Signal{}, fmt.Errorf("%w: %s", models.ErrUnresolvablePayload, job.LastError)
		}
		return models.Signal{}, models.ErrUnresolvablePayload
	}
	if p.signals == nil {
		return models.Signal{}, fmt.Errorf("%w: no signal lookup configured", models.ErrUnresolvablePayload)
	}
	sig, err := p.signals.GetSignal(ctx, job.SignalID)
	if err != nil {
		return models.Signal{}, fmt.Errorf("resolve signal %s: %w", job.SignalID, err)
	}
	return sig, nil
}

func (p *Pool) fail(ctx context.Context, job models.ExecutionJob, cause error) outcome {
	msg := cause.Error()
	p.sink.Emit(ctx, obs.Event{
		Stage:   obs.StageJobFailed,
		JobID:   job.ID,
		Message: msg,
	})
	if err := p.store.FailJob(ctx, job.ID, msg); err != nil {
		p.storeError(ctx, job, "fail not recorded: "+err.Error())
		return outcomeUnrecorded
	}
	return outcomeFailed
}

func (p *Pool) storeError(ctx context.Context, job models.ExecutionJob, msg string) {
	p.log.Error("store write failed", zap.String("job_id", job.ID), zap.String("reason", msg))
	p.sink.Emit(ctx, obs.Event{
		Stage:   obs.StageStoreError,
		JobID:   job.ID,
		Message: msg,
	})
}
