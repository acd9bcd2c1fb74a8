package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/techagentng/spotchat/models"
	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	LatestByConversation(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) error
}

type messageRepo struct {
	DB *gorm.DB
}

func NewMessageRepo(db *GormDB) MessageRepository {
	return &messageRepo{db.DB}
}

// Create appends the message. The messages_after_insert trigger advances the conversation's
// last_message_at and the recipients' unread counters in the same statement.
func (m *messageRepo) Create(ctx context.Context, message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	if err := m.DB.WithContext(ctx).Create(message).Error; err != nil {
		return errors.Wrap(err, "could not save message")
	}
	return nil
}

// ListByConversation returns the full thread oldest first. Messages with equal timestamps
// fall back to id order so repeated reads agree.
func (m *messageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := m.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not list messages")
	}
	return messages, nil
}

func (m *messageRepo) LatestByConversation(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	latest := make(map[uuid.UUID]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}
	var messages []models.Message
	err := m.DB.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (conversation_id) *
		FROM messages
		WHERE conversation_id IN ?
		ORDER BY conversation_id, created_at DESC, id DESC`, conversationIDs).
		Scan(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not load latest messages")
	}
	for _, msg := range messages {
		latest[msg.ConversationID] = msg
	}
	return latest, nil
}

// MarkRead flags every message the reader did not send as read and clears the reader's
// unread counter.
func (m *messageRepo) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) error {
	tx := m.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return errors.Wrap(tx.Error, "could not begin transaction")
	}

	err := tx.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, readerID, false).
		Update("is_read", true).Error
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "could not mark messages read")
	}

	err = tx.Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, readerID).
		Update("unread_count", 0).Error
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "could not reset unread count")
	}

	if err := tx.Commit().Error; err != nil {
		return errors.Wrap(err, "could not commit read marker")
	}
	return nil
}
