package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codemage/internal/logging"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

// Emit logs e. Failures and warnings log at warn level.
func (s *LogSink) Emit(ctx context.Context, e Event) {
	fields := []zap.Field{
		zap.String("event.type", string(e.Type)),
		zap.String("event.id", e.ID),
		zap.String("generation.id", e.GenerationID),
		zap.Int("step", e.Step),
		zap.Int("total_steps", e.TotalSteps),
	}
	if e.PluginName != "" {
		fields = append(fields, zap.String("plugin", e.PluginName))
	}

	switch e.Type {
	case TypeFailed, TypeWarning:
		s.logger.Warn(ctx, e.Message, fields...)
	case TypePreview:
		s.logger.Debug(ctx, "preview rendered", append(fields, zap.String("preview", e.Message))...)
	default:
		s.logger.Info(ctx, e.Message, fields...)
	}
}
