package service

import (
	"context"
	"time"
)

// Reclaimer возвращает протухшие claimed-джобы в pending.
// Вернувшиеся джобы доступны только со следующего ClaimJobs.
type Reclaimer struct {
	store      JobStore
	visibility time.Duration
}

func NewReclaimer(store JobStore, visibility time.Duration) *Reclaimer {
	return &Reclaimer{store: store, visibility: visibility}
}

func (r *Reclaimer) Reclaim(ctx context.Context) (int, error) {
	return r.store.ReclaimStale(ctx, r.visibility)
}
