package utils

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestWindowScriptsCompile(t *testing.T) {
	if windowAcquireScript == nil || windowReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireWindowSlot_RejectsInvalidArgs(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireWindowSlot(ctx, nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	if _, err := AcquireWindowSlot(ctx, rdb, "", 1, time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := AcquireWindowSlot(ctx, rdb, "k", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := AcquireWindowSlot(ctx, rdb, "k", 1, 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
	if err := ReleaseWindowSlot(ctx, rdb, ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
