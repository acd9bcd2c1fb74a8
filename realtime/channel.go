package realtime

import (
	"context"

	"github.com/google/uuid"
)

// Event reasons carried on the wire. Clients only need to know that something changed; the
// reason is informational.
const (
	ReasonMessageCreated      = "message.created"
	ReasonConversationCreated = "conversation.created"
	ReasonConversationRenamed = "conversation.renamed"
	ReasonConversationRead    = "conversation.read"
	ReasonParticipantInvited  = "participant.invited"
	ReasonParticipantUpdated  = "participant.updated"
	ReasonParticipantRemoved  = "participant.removed"
)

// Event is a change notification. It never carries message content.
type Event struct {
	Reason         string    `json:"reason"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ActorID        uuid.UUID `json:"actor_id"`
}

// Channel is a topic based publish/subscribe primitive.
type Channel interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// Subscription delivers events until Close is called. Events is closed once the subscription
// has been released. Close is safe to call more than once.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

func UserTopic(userID uuid.UUID) string {
	return "chat:user:" + userID.String()
}

func ConversationTopic(conversationID uuid.UUID) string {
	return "chat:conversation:" + conversationID.String()
}
