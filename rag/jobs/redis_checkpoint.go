package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docrag/rag/errs"
)

const runKeyPrefix = "run:"

// RedisCheckpointer persists runs as Redis hashes: the "run" field
// holds the run record, every other field is a completed step's result.
// Hashes expire after the configured TTL; a finished run stays readable
// until then.
type RedisCheckpointer struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCheckpointer creates a checkpointer on an existing client.
func NewRedisCheckpointer(client *redis.Client, ttl time.Duration) *RedisCheckpointer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCheckpointer{client: client, ttl: ttl}
}

func (c *RedisCheckpointer) key(runID string) string {
	return runKeyPrefix + runID
}

func (c *RedisCheckpointer) SaveRun(ctx context.Context, run *Run) error {
	run.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, c.key(run.ID), "run", data)
	pipe.Expire(ctx, c.key(run.ID), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.StoreUnavailable(fmt.Errorf("failed to save run %s: %w", run.ID, err))
	}
	return nil
}

func (c *RedisCheckpointer) LoadRun(ctx context.Context, id string) (*Run, error) {
	data, err := c.client.HGet(ctx, c.key(id), "run").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errs.StoreUnavailable(fmt.Errorf("failed to load run %s: %w", id, err))
	}

	var run Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

func (c *RedisCheckpointer) SaveStep(ctx context.Context, runID, step string, result []byte) error {
	if err := c.client.HSet(ctx, c.key(runID), step, result).Err(); err != nil {
		return errs.StoreUnavailable(fmt.Errorf("failed to checkpoint step %s of run %s: %w", step, runID, err))
	}
	return nil
}

func (c *RedisCheckpointer) LoadStep(ctx context.Context, runID, step string) ([]byte, bool, error) {
	data, err := c.client.HGet(ctx, c.key(runID), step).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.StoreUnavailable(fmt.Errorf("failed to load step %s of run %s: %w", step, runID, err))
	}
	return []byte(data), true, nil
}
