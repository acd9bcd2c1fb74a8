package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/techagentng/spotchat/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ParticipantRepository interface {
	Find(ctx context.Context, conversationID, userID uuid.UUID) (*models.Participant, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error)
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]models.Participant, error)
	AddPending(ctx context.Context, conversationID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error)
	UpdateStatus(ctx context.Context, conversationID, userID uuid.UUID, status models.Status) error
	UpdateRole(ctx context.Context, conversationID, userID uuid.UUID, role models.Role) error
	Delete(ctx context.Context, conversationID, userID uuid.UUID) error
}

type participantRepo struct {
	DB *gorm.DB
}

func NewParticipantRepo(db *GormDB) ParticipantRepository {
	return &participantRepo{db.DB}
}

func (p *participantRepo) Find(ctx context.Context, conversationID, userID uuid.UUID) (*models.Participant, error) {
	participant := &models.Participant{}
	err := p.DB.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(participant).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not find participant")
	}
	return participant, nil
}

func (p *participantRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error) {
	var participants []models.Participant
	err := p.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not list participants")
	}
	return participants, nil
}

// ListActiveForUser returns every membership of the user that was not rejected.
func (p *participantRepo) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]models.Participant, error) {
	var participants []models.Participant
	err := p.DB.WithContext(ctx).
		Where("user_id = ? AND status <> ?", userID, models.StatusRejected).
		Find(&participants).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not list memberships")
	}
	return participants, nil
}

// AddPending inserts a pending member row for each user that is not already in the
// conversation and returns the ids that were actually added. A new member has sent nothing
// yet, so every unread message already in the thread counts toward its unread counter.
func (p *participantRepo) AddPending(ctx context.Context, conversationID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var existing []uuid.UUID
	err := p.DB.WithContext(ctx).
		Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id IN ?", conversationID, userIDs).
		Pluck("user_id", &existing).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not check existing participants")
	}
	present := make(map[uuid.UUID]bool, len(existing))
	for _, id := range existing {
		present[id] = true
	}

	now := time.Now()
	var rows []models.Participant
	for _, id := range userIDs {
		if present[id] {
			continue
		}
		present[id] = true
		rows = append(rows, models.Participant{
			ID:             uuid.New(),
			ConversationID: conversationID,
			UserID:         id,
			Role:           models.RoleMember,
			Status:         models.StatusPending,
			JoinedAt:       now,
		})
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var added []uuid.UUID
	err = p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var unread int64
		err := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND is_read = ?", conversationID, false).
			Count(&unread).Error
		if err != nil {
			return errors.Wrap(err, "could not count unread messages")
		}

		// a concurrent invite of the same user loses quietly on the (conversation, user)
		// index and inserts no row
		for i := range rows {
			rows[i].UnreadCount = int(unread)
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows[i])
			if result.Error != nil {
				return errors.Wrap(result.Error, "could not add participants")
			}
			if result.RowsAffected == 1 {
				added = append(added, rows[i].UserID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (p *participantRepo) UpdateStatus(ctx context.Context, conversationID, userID uuid.UUID, status models.Status) error {
	result := p.DB.WithContext(ctx).
		Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("status", status)
	if result.Error != nil {
		return errors.Wrap(result.Error, "could not update participant status")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (p *participantRepo) UpdateRole(ctx context.Context, conversationID, userID uuid.UUID, role models.Role) error {
	result := p.DB.WithContext(ctx).
		Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("role", role)
	if result.Error != nil {
		return errors.Wrap(result.Error, "could not update participant role")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the membership row. The removed user loses the conversation from the inbox
// and any further access to its thread.
func (p *participantRepo) Delete(ctx context.Context, conversationID, userID uuid.UUID) error {
	result := p.DB.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&models.Participant{})
	if result.Error != nil {
		return errors.Wrap(result.Error, "could not remove participant")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
