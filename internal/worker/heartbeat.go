package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func heartbeatKey(instanceID string) string {
	return "instance:" + instanceID + ":heartbeat"
}

// StartHeartbeat keeps a TTL-bounded liveness key fresh so operators can see
// which pipeline instances are running. Blocks until ctx is done.
func StartHeartbeat(ctx context.Context, rdb *redis.Client, instanceID string, ttl, interval time.Duration) {
	tkr := time.NewTicker(interval)
	defer tkr.Stop()
	_ = rdb.Set(ctx, heartbeatKey(instanceID), time.Now().UTC().Format(time.RFC3339), ttl).Err()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tkr.C:
			_ = rdb.Set(ctx, heartbeatKey(instanceID), time.Now().UTC().Format(time.RFC3339), ttl).Err()
		}
	}
}
