package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"signal_exec/internal/models"
	"signal_exec/internal/modules/config"
	"signal_exec/pkg/logger"

	"go.uber.org/zap"
)

// Stream держит по одному независимому Conn на каждый сконфигурированный kind.
type Stream struct {
	conns map[models.StreamKind]*Conn

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStream(cfg config.Stream, bybit config.Bybit, listener Listener) (*Stream, error) {
	s := &Stream{conns: make(map[models.StreamKind]*Conn, len(cfg.Topics))}
	if !cfg.Enabled {
		return s, nil
	}

	for kind, topics := range cfg.Topics {
		if err := kind.Validate(); err != nil {
			return nil, err
		}
		if kind.Private() && bybit.Credentials.Empty() {
			logger.L().Warn("private stream skipped: no credentials", zap.String("kind", string(kind)))
			continue
		}
		url, err := Endpoint(bybit.Network, kind, cfg.URLs)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", kind, err)
		}
		s.conns[kind] = NewConn(Options{
			Kind:         kind,
			URL:          url,
			Credentials:  bybit.Credentials,
			Topics:       topics,
			BackoffFloor: cfg.BackoffFloor,
			BackoffCap:   cfg.BackoffCap,
			Heartbeat:    cfg.Heartbeat,
			AuthTTL:      cfg.AuthTTL,
		}, listener)
	}
	return s, nil
}

func (s *Stream) Kinds() []models.StreamKind {
	out := make([]models.StreamKind, 0, len(s.conns))
	for k := range s.conns {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Stream) Conn(kind models.StreamKind) (*Conn, bool) {
	c, ok := s.conns[kind]
	return c, ok
}

// Start запускает все соединения; каждое переподключается само по себе.
func (s *Stream) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	for _, c := range s.conns {
		s.wg.Add(1)
		go func(c *Conn) {
			defer s.wg.Done()
			_ = c.Run(ctx)
		}(c)
	}
}

// Stop — явный disconnect всех соединений, ждёт выхода циклов.
func (s *Stream) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	for _, c := range s.conns {
		c.Disconnect()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// AddTopics / RemoveTopics проксируют в соединение нужного kind.
func (s *Stream) AddTopics(kind models.StreamKind, topics ...string) error {
	c, ok := s.conns[kind]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotConnected, kind)
	}
	return c.AddTopics(topics...)
}

func (s *Stream) RemoveTopics(kind models.StreamKind, topics ...string) error {
	c, ok := s.conns[kind]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotConnected, kind)
	}
	return c.RemoveTopics(topics...)
}
