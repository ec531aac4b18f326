package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/riverqueue/river"
)

// DeliverArgs is the river job carrying one event to the push gateway.
type DeliverArgs struct {
	Event Event `json:"event"`
}

func (DeliverArgs) Kind() string { return "notify_deliver" }

func (DeliverArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueNotify, MaxAttempts: 5}
}

// QueueNotify isolates delivery from the sweep queue.
const QueueNotify = "notify"

// Publisher sends a payload on a pub/sub channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// DeliverWorker publishes each event for the push gateway to pick up.
type DeliverWorker struct {
	river.WorkerDefaults[DeliverArgs]
	publisher Publisher
	prefix    string
}

func NewDeliverWorker(publisher Publisher, prefix string) *DeliverWorker {
	return &DeliverWorker{publisher: publisher, prefix: prefix}
}

func (w *DeliverWorker) Work(ctx context.Context, job *river.Job[DeliverArgs]) error {
	payload, err := json.Marshal(job.Args.Event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return w.publisher.Publish(ctx, job.Args.Event.Channel(w.prefix), payload)
}

func (w *DeliverWorker) Timeout(*river.Job[DeliverArgs]) time.Duration {
	return 10 * time.Second
}

// RedisPublisher publishes on Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}
