package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer schedules background work for the request path.
type Enqueuer interface {
	EnqueueMessageNotification(ctx context.Context, p MessageNotificationPayload) error
}

type Client struct {
	client *asynq.Client
}

func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

var _ Enqueuer = (*Client)(nil)

func (c *Client) EnqueueMessageNotification(ctx context.Context, p MessageNotificationPayload) error {
	task, err := NewMessageNotificationTask(p)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("asynq: enqueue %s: %w", TypeMessageNotification, err)
	}
	log.Printf("enqueued %s task %s for message %s", TypeMessageNotification, info.ID, p.MessageID)
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// InlineEnqueuer runs notifications in a goroutine of the current process. It is used when no
// redis is configured, so nothing survives a restart.
type InlineEnqueuer struct {
	notifier MessageNotifier
	timeout  time.Duration
}

func NewInlineEnqueuer(notifier MessageNotifier) *InlineEnqueuer {
	return &InlineEnqueuer{notifier: notifier, timeout: 30 * time.Second}
}

var _ Enqueuer = (*InlineEnqueuer)(nil)

func (e *InlineEnqueuer) EnqueueMessageNotification(_ context.Context, p MessageNotificationPayload) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.notifier.NotifyNewMessage(ctx, p); err != nil {
			log.Printf("inline %s for message %s: %v", TypeMessageNotification, p.MessageID, err)
		}
	}()
	return nil
}
