package service

import (
	"context"
	"time"

	"signal_exec/pkg/logger"

	"go.uber.org/zap"
)

const (
	StageBatch      = "batch"
	StageReclaim    = "reclaim"
	StageJobFailed  = "job_failed"
	StageCycleError = "cycle_error"
	StageStoreError = "store_error"
	StageStream     = "stream"
)

// Event — структурное событие пайплайна {stage, jobId?, message, recycledCount?}.
type Event struct {
	Stage         string
	JobID         string
	Message       string
	RecycledCount *int

	Claimed    int
	OK         int
	Failed     int
	Unrecorded int
	Deferred   int

	At time.Time
}

func Recycled(n int) *int { return &n }

// Sink — fire-and-forget приёмник событий. Emit не должен блокировать надолго
// и не возвращает ошибок: проблемы записи не должны ронять пайплайн.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Multi рассылает событие во все синки, изолируя паники каждого.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for _, s := range m {
		if s == nil {
			continue
		}
		emitSafe(ctx, s, ev)
	}
}

func emitSafe(ctx context.Context, s Sink, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			logger.L().Error("sink panic", zap.Any("panic", p), zap.String("stage", ev.Stage))
		}
	}()
	s.Emit(ctx, ev)
}

// Nop — синк для тестов.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}
