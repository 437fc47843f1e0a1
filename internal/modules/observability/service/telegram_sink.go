package service

import (
	"context"
	"sync"
)

// ServiceNotifier — сервисные сообщения в Telegram.
type ServiceNotifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

// TelegramSink пересылает ошибки джобов и циклов в сервисный чат.
// Отправка асинхронная; при переполнении буфера событие выбрасывается.
type TelegramSink struct {
	n     ServiceNotifier
	queue chan Event

	once sync.Once
	done chan struct{}
}

func NewTelegramSink(n ServiceNotifier, buffer int) *TelegramSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &TelegramSink{
		n:     n,
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
	}
}

func (s *TelegramSink) Emit(_ context.Context, ev Event) {
	if ev.Stage != StageJobFailed && ev.Stage != StageCycleError && ev.Stage != StageStoreError {
		return
	}
	select {
	case <-s.done:
	case s.queue <- ev:
	default:
		// чат не успевает — дропаем
	}
}

// Run крутит отправку до отмены ctx или Stop.
func (s *TelegramSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-s.queue:
			switch ev.Stage {
			case StageJobFailed:
				s.n.SendService(ctx, "❗️ [job %s] ошибка исполнения: %s", ev.JobID, ev.Message)
			case StageStoreError:
				s.n.SendService(ctx, "⚠️ [job %s] исход не записан: %s", ev.JobID, ev.Message)
			case StageCycleError:
				s.n.SendService(ctx, "⚠️ цикл воркера прерван: %s", ev.Message)
			}
		}
	}
}

func (s *TelegramSink) Stop() {
	s.once.Do(func() { close(s.done) })
}
