package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"studyCafeCRM/business/flow"
	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

var _ flow.JobSink = (*JobQueueRepository)(nil)

// ListPusher is the part of redis.Cmdable the queue needs.
type ListPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// JobQueueRepository hands jobs to the worker through a redis list. The
// worker BLPOPs the same key, so RPUSH keeps dispatch order.
type JobQueueRepository struct {
	client ListPusher
	key    string
}

func NewJobQueueRepository(client ListPusher, key string) *JobQueueRepository {
	return &JobQueueRepository{
		client: client,
		key:    key,
	}
}

func (r *JobQueueRepository) Publish(ctx context.Context, job domain.Job) error {
	jsonData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pending, err := r.client.RPush(ctx, r.key, jsonData).Result()
	if err != nil {
		return fmt.Errorf("failed to push job to Redis: %w", err)
	}
	metrics.JobQueuePending.Set(float64(pending))

	return nil
}
