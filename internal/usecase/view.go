package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/prismsocial/prism-server/internal/domain"
)

// ViewUsecase tracks what a user has seen and keeps the per-user
// history bounded.
type ViewUsecase struct {
	history HistoryRepository
	content ContentRepository
	filters FilterCache
}

func NewViewUsecase(history HistoryRepository, content ContentRepository, filters FilterCache) *ViewUsecase {
	return &ViewUsecase{
		history: history,
		content: content,
		filters: filters,
	}
}

// RecordView appends one view to the user's window. Re-viewing content
// still inside the window is a no-op reported as AlreadyViewed.
func (uc *ViewUsecase) RecordView(ctx context.Context, userID string, input domain.ViewInput) (domain.ViewResult, error) {

	if userID == "" {
		return domain.ViewResult{}, domain.ValidationError{Field: "userId", Reason: "required"}
	}
	if input.ContentID == 0 {
		return domain.ViewResult{}, domain.ValidationError{Field: "contentId", Reason: "required"}
	}
	if input.ViewDurationSeconds < 0 || input.TotalDurationSeconds < 0 {
		return domain.ViewResult{}, domain.ValidationError{Field: "duration", Reason: "must be non-negative"}
	}

	completed := input.IsCompleted()
	rec := domain.ViewRecord{
		ContentID:           input.ContentID,
		ViewedAt:            time.Now().UTC(),
		ViewDurationSeconds: input.ViewDurationSeconds,
		Completed:           completed,
	}

	alreadyViewed, err := uc.history.Record(ctx, userID, rec)
	if err != nil {
		return domain.ViewResult{}, err
	}
	if alreadyViewed {
		return domain.ViewResult{Success: true, AlreadyViewed: true, ViewDuration: input.ViewDurationSeconds}, nil
	}

	// Counter failures are logged and skipped; the view itself stands.
	if err := uc.content.IncrementViewCounts(ctx, input.ContentID, completed); err != nil {
		slog.Error(
			"Failed to increment view counters",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
			slog.String("module", "view"),
		)
	}

	uc.filters.Invalidate(ctx, userID)

	return domain.ViewResult{
		Success:      true,
		Completed:    completed,
		ViewDuration: input.ViewDurationSeconds,
	}, nil
}

// RecordViewBatch applies client-side batched view reports with a
// single window computation for the whole batch.
func (uc *ViewUsecase) RecordViewBatch(ctx context.Context, userID string, inputs []domain.ViewInput) (domain.BatchViewResult, error) {

	if userID == "" {
		return domain.BatchViewResult{}, domain.ValidationError{Field: "userId", Reason: "required"}
	}
	if len(inputs) == 0 {
		return domain.BatchViewResult{}, domain.ValidationError{Field: "views", Reason: "must not be empty"}
	}

	now := time.Now().UTC()
	recs := make([]domain.ViewRecord, 0, len(inputs))
	completedByID := make(map[uint]bool, len(inputs))
	for i, input := range inputs {
		if input.ContentID == 0 {
			return domain.BatchViewResult{}, domain.ValidationError{Field: "views", Reason: "contentId required"}
		}
		recs = append(recs, domain.ViewRecord{
			ContentID:           input.ContentID,
			ViewedAt:            now.Add(time.Duration(i) * time.Millisecond),
			ViewDurationSeconds: input.ViewDurationSeconds,
			Completed:           input.IsCompleted(),
		})
		completedByID[input.ContentID] = input.IsCompleted()
	}

	result, recorded, err := uc.history.RecordBatch(ctx, userID, recs)
	if err != nil {
		return domain.BatchViewResult{}, err
	}

	for _, id := range recorded {
		if err := uc.content.IncrementViewCounts(ctx, id, completedByID[id]); err != nil {
			slog.Error(
				"Failed to increment view counters",
				slog.String("userId", userID),
				slog.String("error", err.Error()),
				slog.String("module", "view"),
			)
		}
	}

	uc.filters.Invalidate(ctx, userID)

	return result, nil
}

// UnseenFilter returns the exclusion set for the feed assembler.
// Short-TTL cached: staleness only risks re-showing a just-seen item
// once.
func (uc *ViewUsecase) UnseenFilter(ctx context.Context, userID string) ([]uint, error) {

	if ids, ok := uc.filters.Get(ctx, userID); ok {
		return ids, nil
	}

	window, err := uc.history.Window(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(window))
	for _, rec := range window {
		ids = append(ids, rec.ContentID)
	}

	uc.filters.Set(ctx, userID, ids)

	return ids, nil
}

// ResetViews clears the user's history and the cached filter.
func (uc *ViewUsecase) ResetViews(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ValidationError{Field: "userId", Reason: "required"}
	}
	if err := uc.history.Reset(ctx, userID); err != nil {
		return err
	}
	uc.filters.Invalidate(ctx, userID)
	return nil
}

// PruneHistory drops entries past the retention window.
func (uc *ViewUsecase) PruneHistory(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	return uc.history.PruneOlderThan(ctx, cutoff)
}
