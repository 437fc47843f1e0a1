package service

import (
	"sync"
	"sync/atomic"
	"time"

	"signal_exec/internal/models"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	lastTickUnix atomic.Int64 // unix seconds

	mu        sync.RWMutex
	streams   map[models.StreamKind]bool
	lastBatch models.BatchResult
	lastErr   string
}

func NewState() *State {
	s := &State{
		startedAt: time.Now(),
		streams:   make(map[models.StreamKind]bool),
	}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(kind models.StreamKind, v bool) {
	s.mu.Lock()
	s.streams[kind] = v
	s.mu.Unlock()
}

// WSConnected — все известные потоки подключены (пустой набор — true).
func (s *State) WSConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ok := range s.streams {
		if !ok {
			return false
		}
	}
	return true
}

func (s *State) Streams() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.streams))
	for k, v := range s.streams {
		out[string(k)] = v
	}
	return out
}

// RecordBatch — хук цикла воркера: первый успешный цикл делает сервис ready.
func (s *State) RecordBatch(res models.BatchResult, err error) {
	s.TouchTick(time.Now())

	s.mu.Lock()
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastBatch = res
		s.lastErr = ""
	}
	s.mu.Unlock()

	if err == nil {
		s.SetReady(true)
	}
}

func (s *State) LastBatch() (models.BatchResult, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBatch, s.lastErr
}

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
