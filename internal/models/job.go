package models

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobClaimed   JobStatus = "claimed"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// MaxErrorLen — предел длины lastError в символах.
const MaxErrorLen = 2000

// ExecutionJob — одна единица работы "выставить ордер по сигналу".
type ExecutionJob struct {
	ID        string
	SignalID  string  // пусто, если сигнал встроен
	Signal    *Signal // nil, если задан SignalID
	Status    JobStatus
	Attempt   int
	ClaimedAt *time.Time
	LastError string
	CreatedAt time.Time
}

// NewJob — то, что присылает продюсер сигналов.
type NewJob struct {
	ID       string // опционально; пустой — сгенерируем
	SignalID string
	Signal   *Signal
}

func (j NewJob) Validate() error {
	hasID := j.SignalID != ""
	hasPayload := j.Signal != nil
	if hasID == hasPayload {
		return fmt.Errorf("%w: exactly one of signal id or signal payload must be set", ErrInvalidJob)
	}
	if hasPayload {
		if err := j.Signal.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
	}
	return nil
}

// TruncateError обрезает сообщение до MaxErrorLen рун.
func TruncateError(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxErrorLen {
		return msg
	}
	return string(r[:MaxErrorLen])
}

// BatchResult — итог одного прохода воркера.
// Claimed = OK + Failed + Unrecorded + Deferred.
type BatchResult struct {
	Reclaimed int
	Claimed   int
	OK        int
	Failed    int
	// исход не записан в store, джоб остался claimed до reclaim
	Unrecorded int
	// не запущен из-за остановки, остался claimed до reclaim
	Deferred int
}
