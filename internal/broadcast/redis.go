package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Notifier pushes a payload to every live subscriber of a topic. Delivery is
// best-effort: a failed broadcast is the caller's to log, never to retry into
// already-committed state.
type Notifier interface {
	Broadcast(ctx context.Context, topic string, payload any) error
}

type envelope struct {
	EventID string          `json:"event_id"`
	Topic   string          `json:"topic"`
	SentAt  time.Time       `json:"sent_at"`
	Payload json.RawMessage `json:"payload"`
}

type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(redisAddr string) (*RedisNotifier, error) {
	const op = "broadcast.NewRedisNotifier"

	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisNotifier{client: client}, nil
}

func (n *RedisNotifier) Broadcast(ctx context.Context, topic string, payload any) error {
	const op = "broadcast.RedisNotifier.Broadcast"

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", op, err)
	}

	msg, err := json.Marshal(envelope{
		EventID: uuid.NewString(),
		Topic:   topic,
		SentAt:  time.Now().UTC(),
		Payload: raw,
	})
	if err != nil {
		return fmt.Errorf("%s: marshal envelope: %w", op, err)
	}

	if err := n.client.Publish(ctx, topic, msg).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
