package realtime

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Notifier publishes chat events to the inbox topic of each affected user and to the thread
// topic of a conversation. Publishing is best effort: a failed publish is logged and the
// write that caused it still stands.
type Notifier struct {
	channel Channel
}

func NewNotifier(channel Channel) *Notifier {
	return &Notifier{channel: channel}
}

func (n *Notifier) NotifyInbox(ctx context.Context, event Event, userIDs ...uuid.UUID) {
	seen := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := n.channel.Publish(ctx, UserTopic(id), event); err != nil {
			log.Printf("publish %s to user %s: %v", event.Reason, id, err)
		}
	}
}

func (n *Notifier) NotifyThread(ctx context.Context, event Event) {
	if err := n.channel.Publish(ctx, ConversationTopic(event.ConversationID), event); err != nil {
		log.Printf("publish %s to conversation %s: %v", event.Reason, event.ConversationID, err)
	}
}
