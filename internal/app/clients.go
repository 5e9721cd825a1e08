package app

import (
	"fmt"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/clients/redis"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type Clients struct {
	// SnapshotCache is nil when REDIS_ADDR is unset.
	SnapshotCache redis.SnapshotCache
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	var cache redis.SnapshotCache
	if cfg.RedisEnabled {
		c, err := redis.NewSnapshotCache(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis snapshot cache: %w", err)
		}
		cache = c
	}
	return Clients{SnapshotCache: cache}, nil
}

func (c Clients) Close() {
	if c.SnapshotCache != nil {
		_ = c.SnapshotCache.Close()
	}
}
