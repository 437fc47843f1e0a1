package bybit_websocket

import (
	"context"

	"signal_exec/internal/models"
	"signal_exec/internal/modules/bybit_websocket/service"
	"signal_exec/internal/modules/config"
	health "signal_exec/internal/modules/health/service"
	obs "signal_exec/internal/modules/observability/service"
	"signal_exec/pkg/logger"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// streamListener раскладывает события соединений по health, метрикам и sink'у.
type streamListener struct {
	service.NopListener

	state *health.State
	sink  obs.Sink
	log   *zap.Logger
}

func (l *streamListener) OnOpen(kind models.StreamKind) {
	obs.StreamEvents.WithLabelValues(string(kind), "open").Inc()
	if !kind.Private() {
		l.state.SetWSConnected(kind, true)
	}
}

func (l *streamListener) OnAuth(kind models.StreamKind, err error) {
	if err != nil {
		obs.StreamEvents.WithLabelValues(string(kind), "auth_rejected").Inc()
		return
	}
	obs.StreamEvents.WithLabelValues(string(kind), "auth").Inc()
	l.state.SetWSConnected(kind, true)
}

func (l *streamListener) OnMessage(kind models.StreamKind, frame models.InFrame) {
	l.log.Debug("stream message",
		zap.String("kind", string(kind)),
		zap.String("topic", frame.Topic),
		zap.String("type", frame.Type),
	)
}

func (l *streamListener) OnError(kind models.StreamKind, err error) {
	obs.StreamEvents.WithLabelValues(string(kind), "error").Inc()
	l.log.Warn("stream error", zap.String("kind", string(kind)), zap.Error(err))
}

func (l *streamListener) OnClose(kind models.StreamKind, err error) {
	obs.StreamEvents.WithLabelValues(string(kind), "close").Inc()
	l.state.SetWSConnected(kind, false)

	msg := "stream closed"
	if err != nil {
		msg = "stream closed: " + err.Error()
	}
	l.sink.Emit(context.Background(), obs.Event{Stage: obs.StageStream, Message: msg + " (" + string(kind) + ")"})
}

// Module поднимает по соединению на каждый kind из stream.topics.
func Module() fx.Option {
	return fx.Module("bybit_websocket",
		fx.Provide(
			func(cfg *config.Config, state *health.State, sink obs.Sink) (*service.Stream, error) {
				l := &streamListener{state: state, sink: sink, log: logger.L().Named("stream")}
				s, err := service.NewStream(cfg.Stream, cfg.Bybit, l)
				if err != nil {
					return nil, err
				}
				for _, kind := range s.Kinds() {
					state.SetWSConnected(kind, false)
				}
				return s, nil
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Stream) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					s.Start(context.Background())
					return nil
				},
				OnStop: func(context.Context) error {
					s.Stop()
					return nil
				},
			})
		}),
	)
}
