package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const unseenKeyPrefix = "prism:unseen:"

// FilterCacheService keeps the per-user unseen filter in memcached
// for a short TTL. Strictly best-effort: every failure reads as a
// miss and writes are dropped silently.
type FilterCacheService struct {
	mc  *memcache.Client
	ttl time.Duration
}

func NewFilterCacheService(mc *memcache.Client, ttl time.Duration) *FilterCacheService {
	return &FilterCacheService{
		mc:  mc,
		ttl: ttl,
	}
}

func (s *FilterCacheService) Get(ctx context.Context, userID string) ([]uint, bool) {
	item, err := s.mc.Get(unseenKeyPrefix + userID)
	if err != nil {
		return nil, false
	}

	var ids []uint
	if err := json.Unmarshal(item.Value, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func (s *FilterCacheService) Set(ctx context.Context, userID string, ids []uint) {
	value, err := json.Marshal(ids)
	if err != nil {
		return
	}
	_ = s.mc.Set(&memcache.Item{
		Key:        unseenKeyPrefix + userID,
		Value:      value,
		Expiration: int32(s.ttl.Seconds()),
	})
}

func (s *FilterCacheService) Invalidate(ctx context.Context, userID string) {
	_ = s.mc.Delete(unseenKeyPrefix + userID)
}
