package service

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/prismsocial/prism-server/internal/domain"
)

// TrendingCacheService holds the per-kind trending window in process.
// Trending is user-independent, so one short-lived copy serves every
// cold-start request.
type TrendingCacheService struct {
	cache *cache.Cache
}

func NewTrendingCacheService(ttl time.Duration) *TrendingCacheService {
	return &TrendingCacheService{
		cache: cache.New(ttl, 2*ttl),
	}
}

func (s *TrendingCacheService) Get(kind domain.Kind) ([]domain.ContentItem, bool) {
	cached, ok := s.cache.Get(string(kind))
	if !ok {
		return nil, false
	}
	items, ok := cached.([]domain.ContentItem)
	return items, ok
}

func (s *TrendingCacheService) Set(kind domain.Kind, items []domain.ContentItem) {
	s.cache.Set(string(kind), items, cache.DefaultExpiration)
}
