package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is append-only. IsRead is a single flag shared by every recipient.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	IsRead         bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt      time.Time `gorm:"not null;index:idx_messages_conversation_created,priority:2" json:"created_at"`
}

type MessageWithAuthor struct {
	Message
	Author *Profile `json:"author"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,min=1,max=4000" conform:"trim"`
}
