package repository

import (
	"context"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prismsocial/prism-server/internal/domain"
	"github.com/prismsocial/prism-server/internal/infrastructure/database/models"
)

type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

func contentToDomain(m models.Content) domain.ContentItem {
	return domain.ContentItem{
		ID:              m.ID,
		ExternalID:      m.ExternalID,
		Kind:            domain.Kind(m.Kind),
		Library:         m.Library,
		Title:           m.Title,
		Description:     m.Description,
		URL:             m.URL,
		ThumbnailURL:    m.ThumbnailURL,
		Category:        m.Category,
		Tags:            m.Tags,
		Active:          m.Active,
		ExpiresAt:       m.ExpiresAt,
		ViewCount:       m.ViewCount,
		UniqueViewCount: m.UniqueViewCount,
		LikeCount:       m.LikeCount,
		SizeBytes:       m.SizeBytes,
		DurationSeconds: m.DurationSeconds,
		CreatedAt:       m.CDate,
	}
}

func contentsToDomain(ms []models.Content) []domain.ContentItem {
	items := make([]domain.ContentItem, 0, len(ms))
	for _, m := range ms {
		items = append(items, contentToDomain(m))
	}
	return items
}

// GetMirrorState loads (id, active) for every stored item of a kind.
func (r *ContentRepository) GetMirrorState(ctx context.Context, kind domain.Kind) (map[string]domain.MirrorRef, error) {
	var rows []models.Content
	err := r.db.WithContext(ctx).
		Select("id", "external_id", "active").
		Where("kind = ?", string(kind)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	state := make(map[string]domain.MirrorRef, len(rows))
	for _, row := range rows {
		state[row.ExternalID] = domain.MirrorRef{ID: row.ID, Active: row.Active}
	}
	return state, nil
}

// Insert ingests one newly observed provider item. The unique index
// on (kind, external_id) makes a concurrent double-ingest a no-op.
func (r *ContentRepository) Insert(ctx context.Context, lib domain.MediaLibrary, item domain.ProviderItem, expiresAt *time.Time) (uint, error) {
	row := models.Content{
		ExternalID:      item.ExternalID,
		Kind:            string(lib.Kind),
		Library:         lib.ID,
		Title:           item.Title,
		Description:     item.Description,
		URL:             item.URL,
		ThumbnailURL:    item.ThumbnailURL,
		Category:        item.Category,
		Tags:            pq.StringArray(item.Tags),
		Active:          true,
		ExpiresAt:       expiresAt,
		SizeBytes:       item.SizeBytes,
		DurationSeconds: item.DurationSeconds,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "external_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

// Reactivate flips an inactive item back to active when the provider
// lists it again.
func (r *ContentRepository) Reactivate(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Content{}).
		Where("id = ?", id).
		Update("active", true).Error
}

// UpdateVolatile refreshes provider-owned metadata on re-sync.
func (r *ContentRepository) UpdateVolatile(ctx context.Context, id uint, item domain.ProviderItem) error {
	return r.db.WithContext(ctx).Model(&models.Content{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":         item.Title,
			"description":   item.Description,
			"url":           item.URL,
			"thumbnail_url": item.ThumbnailURL,
			"category":      item.Category,
			"tags":          pq.StringArray(item.Tags),
		}).Error
}

// DeactivateMissing soft-deletes every active item of the kind whose
// external ID is absent from the current remote listing.
func (r *ContentRepository) DeactivateMissing(ctx context.Context, kind domain.Kind, present []string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Content{}).
		Where("kind = ? AND active = ?", string(kind), true)
	if len(present) > 0 {
		q = q.Where("external_id NOT IN ?", present)
	}
	result := q.Update("active", false)
	return result.RowsAffected, result.Error
}

// ExpireEphemeral deactivates ephemeral items past their expiry.
func (r *ContentRepository) ExpireEphemeral(ctx context.Context, kinds []domain.Kind, now time.Time) (int64, error) {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	result := r.db.WithContext(ctx).Model(&models.Content{}).
		Where("kind IN ? AND active = ? AND expires_at IS NOT NULL AND expires_at <= ?", names, true, now).
		Update("active", false)
	return result.RowsAffected, result.Error
}

func (r *ContentRepository) Get(ctx context.Context, id uint) (domain.ContentItem, error) {
	var row models.Content
	err := r.db.WithContext(ctx).Take(&row, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ContentItem{}, domain.NotFoundError{Resource: "content"}
		}
		return domain.ContentItem{}, err
	}
	return contentToDomain(row), nil
}

// IncrementViewCounts bumps the view counters atomically in SQL so
// concurrent views never lose updates.
func (r *ContentRepository) IncrementViewCounts(ctx context.Context, id uint, completed bool) error {
	updates := map[string]any{
		"view_count": gorm.Expr("view_count + 1"),
	}
	if completed {
		updates["unique_view_count"] = gorm.Expr("unique_view_count + 1")
	}
	return r.db.WithContext(ctx).Model(&models.Content{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}

// IncrementLikeCount bumps the like counter atomically.
func (r *ContentRepository) IncrementLikeCount(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Content{}).
		Where("id = ?", id).
		UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
}

// ListRecent returns active items of a kind ordered by recency,
// optionally narrowed by category and excluding already-seen IDs.
func (r *ContentRepository) ListRecent(ctx context.Context, kind domain.Kind, category string, exclude []uint, limit, offset int) ([]domain.ContentItem, error) {
	q := r.db.WithContext(ctx).
		Where("kind = ? AND active = ?", string(kind), true)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}

	var rows []models.Content
	err := q.Order("c_date DESC").Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return contentsToDomain(rows), nil
}

// ListTrending returns active items of a kind in popularity order.
func (r *ContentRepository) ListTrending(ctx context.Context, kind domain.Kind, limit, offset int) ([]domain.ContentItem, error) {
	var rows []models.Content
	err := r.db.WithContext(ctx).
		Where("kind = ? AND active = ?", string(kind), true).
		Order("view_count DESC, like_count DESC, c_date DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return contentsToDomain(rows), nil
}
