package broadcast

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const Channel = "bikes-update"

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink publishes snapshots as JSON on a pub/sub channel.
type RedisSink struct {
	rdb publisher
}

func NewRedisSink(rdb redis.UniversalClient) *RedisSink {
	return &RedisSink{rdb: rdb}
}

func (s *RedisSink) Publish(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish on %s: %w", Channel, err)
	}
	return nil
}
