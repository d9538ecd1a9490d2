package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list channel workers consume.
const DefaultQueueKey = "outreach:dispatch"

// RedisQueue is a FIFO Redis list: LPUSH to publish, BRPOP to consume.
// Each platform gets its own list (<key>:<platform>) so channel workers
// only pull what they can execute.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue rooted at key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) listKey(platform string) string {
	return q.key + ":" + platform
}

func (q *RedisQueue) Publish(ctx context.Context, item WorkItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	return q.client.LPush(ctx, q.listKey(string(item.Platform)), data).Err()
}

// Pop blocks up to timeout for the oldest item on platform's list.
func (q *RedisQueue) Pop(ctx context.Context, platform string, timeout time.Duration) (WorkItem, error) {
	res, err := q.client.BRPop(ctx, timeout, q.listKey(platform)).Result()
	if err == redis.Nil {
		return WorkItem{}, ErrQueueEmpty
	}
	if err != nil {
		return WorkItem{}, fmt.Errorf("pop work item: %w", err)
	}
	var item WorkItem
	if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
		return WorkItem{}, fmt.Errorf("decode work item: %w", err)
	}
	return item, nil
}

// Depth returns the number of queued items for platform.
func (q *RedisQueue) Depth(ctx context.Context, platform string) (int64, error) {
	return q.client.LLen(ctx, q.listKey(platform)).Result()
}
