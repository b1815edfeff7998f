package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prismsocial/prism-server/internal/domain"
	"github.com/prismsocial/prism-server/internal/infrastructure/database/models"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Apply records one interaction against a set of tags. The ledger row
// is locked for the whole read-modify-write, so concurrent calls for
// the same user serialize and TotalInteractions increments exactly
// once per call.
func (r *LedgerRepository) Apply(ctx context.Context, userID string, tags []string, base float64, now time.Time) (domain.InterestLedger, error) {

	var snapshot domain.InterestLedger

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&models.InterestLedger{UserID: userID}).Error; err != nil {
			return err
		}

		var ledger models.InterestLedger
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Take(&ledger).Error; err != nil {
			return err
		}

		var rows []models.LedgerEntry
		if err := tx.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
			return err
		}

		existing := make(map[string]models.LedgerEntry, len(rows))
		for _, row := range rows {
			existing[row.Tag] = row
		}

		for _, tag := range tags {
			row, ok := existing[tag]
			if !ok {
				row = models.LedgerEntry{UserID: userID, Tag: tag}
			}
			entry := domain.LedgerEntry{
				Tag:              tag,
				Weight:           row.Weight,
				InteractionCount: row.InteractionCount,
				LastUpdated:      row.LastUpdated,
			}
			entry = entry.Bump(base, now)

			row.Weight = entry.Weight
			row.InteractionCount = entry.InteractionCount
			row.LastUpdated = entry.LastUpdated

			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "tag"}},
				DoUpdates: clause.AssignmentColumns([]string{"weight", "interaction_count", "last_updated"}),
			}).Create(&row).Error; err != nil {
				return err
			}
			existing[tag] = row
		}

		ledger.TotalInteractions++
		if err := tx.Model(&models.InterestLedger{}).
			Where("user_id = ?", userID).
			Update("total_interactions", ledger.TotalInteractions).Error; err != nil {
			return err
		}

		snapshot = ledgerToDomain(ledger, existing)
		return nil
	})

	return snapshot, err
}

// Get loads a user's ledger; NotFound when the user has never
// interacted.
func (r *LedgerRepository) Get(ctx context.Context, userID string) (domain.InterestLedger, error) {

	var ledger models.InterestLedger
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&ledger).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.InterestLedger{}, domain.NotFoundError{Resource: "interest ledger"}
		}
		return domain.InterestLedger{}, err
	}

	var rows []models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return domain.InterestLedger{}, err
	}

	entries := make(map[string]models.LedgerEntry, len(rows))
	for _, row := range rows {
		entries[row.Tag] = row
	}

	return ledgerToDomain(ledger, entries), nil
}

// Decay persists one decay step for entries that have not been
// touched for a full period.
func (r *LedgerRepository) Decay(ctx context.Context, factor float64, cutoff time.Time, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("last_updated < ?", cutoff).
		UpdateColumns(map[string]any{
			"weight":       gorm.Expr("weight * ?", factor),
			"last_updated": now,
		})
	return result.RowsAffected, result.Error
}

func ledgerToDomain(ledger models.InterestLedger, rows map[string]models.LedgerEntry) domain.InterestLedger {
	entries := make(map[string]domain.LedgerEntry, len(rows))
	for tag, row := range rows {
		entries[tag] = domain.LedgerEntry{
			Tag:              tag,
			Weight:           row.Weight,
			InteractionCount: row.InteractionCount,
			LastUpdated:      row.LastUpdated,
		}
	}
	return domain.InterestLedger{
		UserID:            ledger.UserID,
		Entries:           entries,
		TotalInteractions: ledger.TotalInteractions,
	}
}
