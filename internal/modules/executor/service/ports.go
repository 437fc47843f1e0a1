package service

import (
	"context"
	"time"

	"signal_exec/internal/models"
)

// JobStore — четыре атомарные операции, которыми пользуется воркер.
type JobStore interface {
	ClaimJobs(ctx context.Context, limit int) ([]models.ExecutionJob, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id, message string) error
	ReclaimStale(ctx context.Context, visibility time.Duration) (int, error)
}

type SignalLookup interface {
	GetSignal(ctx context.Context, id string) (models.Signal, error)
}

type Broker interface {
	Execute(ctx context.Context, sig models.Signal) (models.OrderResult, error)
}
