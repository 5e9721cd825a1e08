package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/envutil"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

const (
	snapshotKeyPrefix = "learner:snapshot:"
	defaultTTL        = 30 * time.Minute
)

// SnapshotCache holds the latest serialized engine snapshot per learner in
// front of the database.
type SnapshotCache interface {
	Get(ctx context.Context, learnerID uuid.UUID) ([]byte, bool, error)
	Set(ctx context.Context, learnerID uuid.UUID, payload []byte) error
	Delete(ctx context.Context, learnerID uuid.UUID) error
	Client() goredis.UniversalClient
	Close() error
}

type snapshotCache struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	ttl time.Duration
}

// NewSnapshotCache connects to REDIS_ADDR and pings it. Entries expire after
// SNAPSHOT_CACHE_TTL.
func NewSnapshotCache(log *logger.Logger) (SnapshotCache, error) {
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewSnapshotCacheFromClient(rdb, envutil.Duration("SNAPSHOT_CACHE_TTL", defaultTTL), log), nil
}

func NewSnapshotCacheFromClient(rdb goredis.UniversalClient, ttl time.Duration, log *logger.Logger) SnapshotCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &snapshotCache{
		log: log.With("service", "RedisSnapshotCache"),
		rdb: rdb,
		ttl: ttl,
	}
}

func SnapshotKey(learnerID uuid.UUID) string {
	return snapshotKeyPrefix + learnerID.String()
}

func (c *snapshotCache) Get(ctx context.Context, learnerID uuid.UUID) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, SnapshotKey(learnerID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get snapshot: %w", err)
	}
	return b, true, nil
}

func (c *snapshotCache) Set(ctx context.Context, learnerID uuid.UUID, payload []byte) error {
	if err := c.rdb.Set(ctx, SnapshotKey(learnerID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

func (c *snapshotCache) Delete(ctx context.Context, learnerID uuid.UUID) error {
	if err := c.rdb.Del(ctx, SnapshotKey(learnerID)).Err(); err != nil {
		return fmt.Errorf("redis delete snapshot: %w", err)
	}
	return nil
}

func (c *snapshotCache) Client() goredis.UniversalClient { return c.rdb }

func (c *snapshotCache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
