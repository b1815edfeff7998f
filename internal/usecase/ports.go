package usecase

import (
	"context"
	"time"

	"github.com/prismsocial/prism-server/internal/domain"
)

// ContentRepository defines primary-store operations on mirrored
// content.
type ContentRepository interface {
	GetMirrorState(ctx context.Context, kind domain.Kind) (map[string]domain.MirrorRef, error)
	Insert(ctx context.Context, lib domain.MediaLibrary, item domain.ProviderItem, expiresAt *time.Time) (uint, error)
	Reactivate(ctx context.Context, id uint) error
	UpdateVolatile(ctx context.Context, id uint, item domain.ProviderItem) error
	DeactivateMissing(ctx context.Context, kind domain.Kind, present []string) (int64, error)
	ExpireEphemeral(ctx context.Context, kinds []domain.Kind, now time.Time) (int64, error)
	Get(ctx context.Context, id uint) (domain.ContentItem, error)
	IncrementViewCounts(ctx context.Context, id uint, completed bool) error
	IncrementLikeCount(ctx context.Context, id uint) error
	ListRecent(ctx context.Context, kind domain.Kind, category string, exclude []uint, limit, offset int) ([]domain.ContentItem, error)
	ListTrending(ctx context.Context, kind domain.Kind, limit, offset int) ([]domain.ContentItem, error)
}

// LedgerRepository defines persistence for per-user interest ledgers.
type LedgerRepository interface {
	Apply(ctx context.Context, userID string, tags []string, base float64, now time.Time) (domain.InterestLedger, error)
	Get(ctx context.Context, userID string) (domain.InterestLedger, error)
	Decay(ctx context.Context, factor float64, cutoff time.Time, now time.Time) (int64, error)
}

// HistoryRepository defines persistence for bounded view histories.
type HistoryRepository interface {
	Window(ctx context.Context, userID string) ([]domain.ViewRecord, error)
	Record(ctx context.Context, userID string, rec domain.ViewRecord) (bool, error)
	RecordBatch(ctx context.Context, userID string, recs []domain.ViewRecord) (domain.BatchViewResult, []uint, error)
	Reset(ctx context.Context, userID string) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProviderGateway encapsulates the storage provider's listing API.
type ProviderGateway interface {
	ListLibraryItems(ctx context.Context, lib domain.MediaLibrary) ([]domain.ProviderItem, error)
}

// Publisher fans out change notifications, fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, channel string, event domain.Event) error
}

// SyncGuard provides the per-library run-in-progress flag and the
// last successful listing digest.
type SyncGuard interface {
	TryLock(ctx context.Context, library string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, library string) error
	GetDigest(ctx context.Context, library string) (uint64, error)
	SetDigest(ctx context.Context, library string, digest uint64) error
}

// FilterCache caches the per-user unseen filter for a short TTL.
// Failures are best-effort; callers fall through to the store.
type FilterCache interface {
	Get(ctx context.Context, userID string) ([]uint, bool)
	Set(ctx context.Context, userID string, ids []uint)
	Invalidate(ctx context.Context, userID string)
}

// TrendingCache caches the user-independent trending window per kind.
type TrendingCache interface {
	Get(kind domain.Kind) ([]domain.ContentItem, bool)
	Set(kind domain.Kind, items []domain.ContentItem)
}

// FilterProvider yields the exclusion set the feed assembler applies
// before ranking.
type FilterProvider interface {
	UnseenFilter(ctx context.Context, userID string) ([]uint, error)
}
