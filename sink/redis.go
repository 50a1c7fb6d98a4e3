package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/use-agent/recoveryfinder/models"
)

// RedisStream publishes each record as a JSON entry on a Redis stream.
type RedisStream struct {
	client *redis.Client
	ctx    context.Context
	stream string
	runID  string
}

// NewRedisStream connects lazily to addr; the first Append reports
// connection problems.
func NewRedisStream(ctx context.Context, addr string, db int, stream, runID string) *RedisStream {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	return &RedisStream{client: client, ctx: ctx, stream: stream, runID: runID}
}

func (s *RedisStream) Append(rec models.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	err = s.client.XAdd(s.ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"run_id": s.runID,
			"record": string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisStream) Close() error {
	return s.client.Close()
}
