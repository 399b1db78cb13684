package service

import (
	"context"

	"forum/internal/models"
	"forum/internal/observability"
	"forum/internal/repository"

	"gorm.io/gorm"
)

// ViewService counts thread views. Every call counts; there is no
// per-viewer deduplication.
type ViewService struct {
	runner  *repository.Runner
	threads repository.ThreadRepository
}

func NewViewService(runner *repository.Runner, threads repository.ThreadRepository) *ViewService {
	return &ViewService{runner: runner, threads: threads}
}

// IncrementView adds one view to a visible thread with a single atomic
// UPDATE. A retry after an uncertain commit replays the receipt instead of
// counting twice.
func (s *ViewService) IncrementView(ctx context.Context, threadID uint) error {
	_, err := repository.Execute(ctx, s.runner, "thread.view", func(tx *gorm.DB) (bool, error) {
		ok, err := s.threads.WithTx(tx).IncrementViewCount(ctx, threadID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, models.NewNotFoundError("Thread", threadID)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	observability.ViewIncrements.Inc()
	return nil
}
