package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

func TestSnapshotKey(t *testing.T) {
	id := uuid.MustParse("6f1c2a40-8d1e-4c55-9b0e-2f3a4b5c6d7e")
	if got := SnapshotKey(id); got != "learner:snapshot:6f1c2a40-8d1e-4c55-9b0e-2f3a4b5c6d7e" {
		t.Fatalf("SnapshotKey: got=%s", got)
	}
}

func TestNewSnapshotCacheRequiresAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if _, err := NewSnapshotCache(logger.Nop()); err == nil {
		t.Fatal("NewSnapshotCache: expected error without REDIS_ADDR")
	}
}

func TestSnapshotCacheSurfacesClientErrors(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	cache := NewSnapshotCacheFromClient(rdb, 0, logger.Nop())
	if err := cache.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id := uuid.New()
	if _, ok, err := cache.Get(ctx, id); err == nil || ok {
		t.Fatalf("Get on closed client: ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, id, []byte(`{}`)); err == nil {
		t.Fatal("Set on closed client: expected error")
	}
	if err := cache.Delete(ctx, id); err == nil {
		t.Fatal("Delete on closed client: expected error")
	}
}
