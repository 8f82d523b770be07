package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/turtacn/FediSent-Analytics/pkg/errors"
)

// ErrQueueTimeout is returned by Dequeue when no item arrives within the
// blocking-pop timeout. An idle queue is a routine condition, not a failure;
// the consumer loop uses it to re-check its shutdown flag.
var ErrQueueTimeout = errors.New(errors.ErrCodeQueueTimeout, "no queue item within timeout")

// Queue is a durable FIFO list on the shared redis client. Producers push
// JSON-encoded items to the tail; the consumer pops from the head with a
// bounded blocking wait.
type Queue struct {
	client *Client
	name   string
}

// NewQueue binds a Queue to a named redis list.
func NewQueue(client *Client, name string) *Queue {
	return &Queue{client: client, name: name}
}

// Name returns the underlying list key.
func (q *Queue) Name() string {
	return q.name
}

// Push appends one or more raw payloads to the tail of the queue.
func (q *Queue) Push(ctx context.Context, payloads ...string) error {
	if len(payloads) == 0 {
		return nil
	}
	values := make([]interface{}, len(payloads))
	for i, p := range payloads {
		values[i] = p
	}
	if err := q.client.RPush(ctx, q.name, values...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeQueueConnection, "queue push failed").WithDetail(q.name)
	}
	return nil
}

// Dequeue pops one item from the head, blocking up to timeout. Returns
// ErrQueueTimeout when the queue stays empty for the full wait. The timeout
// should be short so shutdown signals are observed promptly.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err != nil {
		if err == goredis.Nil {
			return "", ErrQueueTimeout
		}
		return "", errors.Wrap(err, errors.ErrCodeQueueConnection, "queue pop failed").WithDetail(q.name)
	}
	// BLPop returns [key, value].
	if len(res) != 2 {
		return "", errors.Newf(errors.ErrCodeQueuePayload, "unexpected BLPOP reply of length %d", len(res))
	}
	return res[1], nil
}

// Len reports the number of items waiting in the queue.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeQueueConnection, "queue length failed").WithDetail(q.name)
	}
	return n, nil
}

// Clear drops the whole queue. Returns the number of items discarded.
// Destructive; only the CLI exposes it, behind a confirmation flag.
func (q *Queue) Clear(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeQueueConnection, "queue length failed").WithDetail(q.name)
	}
	if n == 0 {
		return 0, nil
	}
	if err := q.client.Del(ctx, q.name).Err(); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeQueueConnection, "queue clear failed").WithDetail(q.name)
	}
	return n, nil
}
