package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChannel carries events between instances over redis pub/sub.
type RedisChannel struct {
	client *redis.Client
}

// NewRedisChannel connects to the redis server at url and checks that it answers.
func NewRedisChannel(url string) (*RedisChannel, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisChannel{client: client}, nil
}

var _ Channel = (*RedisChannel)(nil)

func (r *RedisChannel) Publish(ctx context.Context, topic string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}
	return r.client.Publish(ctx, topic, payload).Err()
}

// Subscribe returns once redis has confirmed the subscription, so no event published after
// it returns is missed.
func (r *RedisChannel) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", topic, err)
	}
	sub := &redisSubscription{
		pubsub: ps,
		events: make(chan Event, subscriptionBuffer),
	}
	go sub.pump(topic)
	return sub, nil
}

func (r *RedisChannel) Close() error {
	return r.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan Event
	once   sync.Once
}

func (s *redisSubscription) pump(topic string) {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("redis: discarding malformed event on %s: %v", topic, err)
			continue
		}
		select {
		case s.events <- event:
		default:
			log.Printf("dropping %s event on %s: subscriber is behind", event.Reason, topic)
		}
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
