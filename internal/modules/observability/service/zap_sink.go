package service

import (
	"context"

	"go.uber.org/zap"
)

type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log.Named("pipeline")}
}

func (s *ZapSink) Emit(_ context.Context, ev Event) {
	fields := []zap.Field{zap.String("stage", ev.Stage)}
	if ev.JobID != "" {
		fields = append(fields, zap.String("job_id", ev.JobID))
	}
	if ev.RecycledCount != nil {
		fields = append(fields, zap.Int("recycled", *ev.RecycledCount))
	}
	if ev.Stage == StageBatch {
		fields = append(fields,
			zap.Int("claimed", ev.Claimed),
			zap.Int("ok", ev.OK),
			zap.Int("failed", ev.Failed),
			zap.Int("unrecorded", ev.Unrecorded),
			zap.Int("deferred", ev.Deferred),
		)
	}

	switch ev.Stage {
	case StageJobFailed, StageCycleError, StageStoreError:
		s.log.Error(ev.Message, fields...)
	case StageBatch:
		if ev.Claimed == 0 && (ev.RecycledCount == nil || *ev.RecycledCount == 0) {
			s.log.Debug(ev.Message, fields...)
			return
		}
		s.log.Info(ev.Message, fields...)
	default:
		s.log.Info(ev.Message, fields...)
	}
}
