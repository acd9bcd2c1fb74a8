package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation is a direct (1:1) or group thread. DirectKey is set only for direct
// conversations and carries the unique sorted user pair.
type Conversation struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name          *string       `gorm:"type:varchar(100)" json:"name"`
	IsGroup       bool          `gorm:"not null;default:false" json:"is_group"`
	DirectKey     *string       `gorm:"type:varchar(73);uniqueIndex" json:"-"`
	CreatedBy     uuid.UUID     `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	LastMessageAt time.Time     `gorm:"not null;index" json:"last_message_at"`
	Participants  []Participant `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
}

// DirectKey returns the order-independent key of a user pair.
func DirectKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if strings.Compare(x, y) > 0 {
		x, y = y, x
	}
	return x + ":" + y
}

// ConversationSummary is one inbox row as seen by a single user.
type ConversationSummary struct {
	Conversation
	Participants []ParticipantWithProfile `json:"participants"`
	LastMessage  *Message                 `json:"last_message"`
	UnreadCount  int                      `json:"unread_count"`
	MyRole       Role                     `json:"my_role"`
	MyStatus     Status                   `json:"my_status"`
}

// Inbox splits a user's conversations into active chats and open invites. Conversations
// keeps the unsplit list, most recent activity first.
type Inbox struct {
	Active        []ConversationSummary `json:"active"`
	Invites       []ConversationSummary `json:"invites"`
	Conversations []ConversationSummary `json:"conversations"`
}

type CreateDirectRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type CreateGroupRequest struct {
	Name      string      `json:"name" binding:"required,min=1,max=100" conform:"trim"`
	MemberIDs []uuid.UUID `json:"member_ids" binding:"required,min=1,dive,required"`
}

type RenameGroupRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100" conform:"trim"`
}

type ConversationIDResponse struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}
