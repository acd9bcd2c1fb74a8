package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeMessageNotification is the task that pushes a new message to recipients' devices.
const TypeMessageNotification = "message:notify"

const notificationQueue = "notifications"

// MessageNotificationPayload is the JSON body of a TypeMessageNotification task.
type MessageNotificationPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Preview        string    `json:"preview"`
}

func NewMessageNotificationTask(p MessageNotificationPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMessageNotification, payload,
		asynq.Queue(notificationQueue),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	), nil
}

// MessageNotifier delivers a message notification. Implementations must tolerate being
// called again for the same message after a retry.
type MessageNotifier interface {
	NotifyNewMessage(ctx context.Context, p MessageNotificationPayload) error
}

// HandleMessageNotification decodes the task and hands it to notifier. A payload that does
// not decode is never retried.
func HandleMessageNotification(notifier MessageNotifier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p MessageNotificationPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		if p.ConversationID == uuid.Nil || p.MessageID == uuid.Nil {
			return fmt.Errorf("%s payload without ids: %w", t.Type(), asynq.SkipRetry)
		}
		return notifier.NotifyNewMessage(ctx, p)
	}
}
