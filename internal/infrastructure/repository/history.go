package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prismsocial/prism-server/internal/domain"
	"github.com/prismsocial/prism-server/internal/infrastructure/database/models"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Window returns the user's current history window, newest first.
func (r *HistoryRepository) Window(ctx context.Context, userID string) ([]domain.ViewRecord, error) {
	var rows []models.ViewRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("viewed_at DESC").
		Limit(domain.HistoryWindow).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.ViewRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.ViewRecord{
			ContentID:           row.ContentID,
			ViewedAt:            row.ViewedAt,
			ViewDurationSeconds: row.ViewDurationSeconds,
			Completed:           row.Completed,
		})
	}
	return records, nil
}

// Record appends one view. Returns alreadyViewed=true without
// touching anything when the content is still inside the window.
func (r *HistoryRepository) Record(ctx context.Context, userID string, rec domain.ViewRecord) (bool, error) {

	alreadyViewed := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		var count int64
		if err := tx.Model(&models.ViewRecord{}).
			Where("user_id = ? AND content_id = ?", userID, rec.ContentID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			alreadyViewed = true
			return nil
		}

		row := models.ViewRecord{
			UserID:              userID,
			ContentID:           rec.ContentID,
			ViewedAt:            rec.ViewedAt,
			ViewDurationSeconds: rec.ViewDurationSeconds,
			Completed:           rec.Completed,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}

		return trimWindow(tx, userID)
	})

	return alreadyViewed, err
}

// RecordBatch applies a whole batch of views with one window trim at
// the end instead of one per view. The second return value lists the
// content IDs that were actually recorded (non-duplicates).
func (r *HistoryRepository) RecordBatch(ctx context.Context, userID string, recs []domain.ViewRecord) (domain.BatchViewResult, []uint, error) {

	var result domain.BatchViewResult
	var recorded []uint

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		for _, rec := range recs {
			row := models.ViewRecord{
				UserID:              userID,
				ContentID:           rec.ContentID,
				ViewedAt:            rec.ViewedAt,
				ViewDurationSeconds: rec.ViewDurationSeconds,
				Completed:           rec.Completed,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				result.Duplicate++
			} else {
				result.Recorded++
				recorded = append(recorded, rec.ContentID)
			}
		}

		var before int64
		if err := tx.Model(&models.ViewRecord{}).
			Where("user_id = ?", userID).
			Count(&before).Error; err != nil {
			return err
		}

		if err := trimWindow(tx, userID); err != nil {
			return err
		}

		if before > domain.HistoryWindow {
			result.Evicted = int(before - domain.HistoryWindow)
		}
		return nil
	})

	return result, recorded, err
}

// trimWindow evicts the oldest rows past the window cap, FIFO by
// viewed-at. The eviction set itself is computed by
// domain.WindowOverflow.
func trimWindow(tx *gorm.DB, userID string) error {
	var ids []uint
	if err := tx.Model(&models.ViewRecord{}).
		Where("user_id = ?", userID).
		Order("viewed_at DESC").
		Pluck("content_id", &ids).Error; err != nil {
		return err
	}

	evict := domain.WindowOverflow(ids)
	if len(evict) == 0 {
		return nil
	}
	return tx.
		Where("user_id = ? AND content_id IN ?", userID, evict).
		Delete(&models.ViewRecord{}).Error
}

// Reset clears the user's history entirely.
func (r *HistoryRepository) Reset(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.ViewRecord{}).Error
}

// PruneOlderThan drops entries past the retention window regardless
// of the cap.
func (r *HistoryRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("viewed_at < ?", cutoff).
		Delete(&models.ViewRecord{})
	return result.RowsAffected, result.Error
}
