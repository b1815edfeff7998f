package service

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix   = "prism:sync:lock:"
	digestKeyPrefix = "prism:sync:digest:"
)

// SyncGuardService implements the per-library single-flight flag and
// listing-digest storage on redis. The lock TTL doubles as the
// crash-release timeout: a run that dies without unlocking frees
// itself once the TTL lapses.
type SyncGuardService struct {
	rdb *redis.Client
}

func NewSyncGuardService(redisClient *redis.Client) *SyncGuardService {
	return &SyncGuardService{
		rdb: redisClient,
	}
}

func (s *SyncGuardService) TryLock(ctx context.Context, library string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, lockKeyPrefix+library, "1", ttl).Result()
}

func (s *SyncGuardService) Unlock(ctx context.Context, library string) error {
	return s.rdb.Del(ctx, lockKeyPrefix+library).Err()
}

func (s *SyncGuardService) GetDigest(ctx context.Context, library string) (uint64, error) {
	val, err := s.rdb.Get(ctx, digestKeyPrefix+library).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(val, 10, 64)
}

func (s *SyncGuardService) SetDigest(ctx context.Context, library string, digest uint64) error {
	return s.rdb.Set(ctx, digestKeyPrefix+library, strconv.FormatUint(digest, 10), 0).Err()
}
