package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/progress"
	"github.com/JakeFAU/questledger/internal/store"
)

// StoreSink records sync run lifecycles through a store.RunRepository.
// Category events are ignored; the run summary carries their totals.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run milestones to the repository. It respects ctx deadlines
// and returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if err := s.handleRunEvent(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, evt progress.Event) error {
	var status store.RunStatus
	switch evt.Stage {
	case progress.StageRunStart:
		if err := s.repo.RecordRunStart(ctx, evt.RunID, evt.TS); err != nil {
			return fmt.Errorf("record run start: %w", err)
		}
		return nil
	case progress.StageRunDone:
		status = store.RunSuccess
		if evt.Errors > 0 {
			status = store.RunPartial
		}
	case progress.StageRunCanceled:
		status = store.RunCanceled
	default:
		return nil
	}
	var note *string
	if evt.Note != "" {
		note = &evt.Note
	}
	if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, status, evt.Entries, evt.Errors, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	s.logger.Debug("sync run recorded",
		zap.String("run_id", evt.RunID.String()),
		zap.String("status", string(status)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
