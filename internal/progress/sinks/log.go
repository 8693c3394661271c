package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/progress"
)

// LogSink writes every progress event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields. Category
// failures are logged at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("percent", evt.Percent),
		}
		if evt.Category != "" {
			fields = append(fields, zap.String("category", evt.Category))
		}
		if evt.Label != "" {
			fields = append(fields, zap.String("label", evt.Label))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		switch evt.Stage {
		case progress.StageCategoryDone, progress.StageCategoryError:
			fields = append(fields,
				zap.Int("entries", evt.Entries),
				zap.Bool("from_cache", evt.FromCache),
				zap.String("status_class", string(evt.StatusClass)),
				zap.Int("attempts", evt.Attempts),
				zap.Duration("dur", evt.Dur),
			)
		case progress.StageRunDone, progress.StageRunCanceled:
			fields = append(fields,
				zap.Int("entries", evt.Entries),
				zap.Int("errors", evt.Errors),
				zap.Duration("dur", evt.Dur),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageCategoryError {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
