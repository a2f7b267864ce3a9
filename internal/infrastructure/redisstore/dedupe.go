package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedupe records webhook event IDs in Redis so replayed deliveries are
// acknowledged without reprocessing. Keys expire after the retention window;
// gateways do not retry deliveries that old.
type Dedupe struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedupe(client *redis.Client) *Dedupe {
	return &Dedupe{client: client, ttl: 72 * time.Hour}
}

func (d *Dedupe) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, "webhook:event:"+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return ok, nil
}
