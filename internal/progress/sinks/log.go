package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/signal-tally/internal/progress"
)

// LogSink writes each progress event as a structured log line.
type LogSink struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewLogSink wires a Zap logger to the sink interface. Task events are logged
// at debug level, run events at info.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress"), level: zapcore.InfoLevel}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("mode", evt.Mode),
			zap.Duration("dur", evt.Dur),
		}
		level := s.level
		if evt.IsTask() {
			level = zapcore.DebugLevel
			fields = append(fields, zap.String("site", evt.Site), zap.String("url", evt.URL))
		}
		if evt.Signals > 0 {
			fields = append(fields, zap.Int("signals", evt.Signals))
		}
		if evt.Partial {
			fields = append(fields, zap.Bool("partial", true))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageRunError {
			level = zapcore.WarnLevel
		}
		s.logger.Log(level, "progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
