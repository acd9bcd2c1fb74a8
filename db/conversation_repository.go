package db

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/techagentng/spotchat/models"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

// ErrDuplicateDirect is returned when another writer created the direct conversation of the
// same user pair first.
var ErrDuplicateDirect = errors.New("direct conversation already exists for this pair")

type ConversationRepository interface {
	LookupOrCreateDirect(ctx context.Context, userA, userB uuid.UUID) (uuid.UUID, bool, error)
	ConversationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	FindDirectAmong(ctx context.Context, conversationIDs []uuid.UUID) ([]uuid.UUID, error)
	FindByDirectKey(ctx context.Context, key string) (*models.Conversation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	CreateDirect(ctx context.Context, convo *models.Conversation, creatorID, otherID uuid.UUID) error
	CreateGroup(ctx context.Context, convo *models.Conversation, creatorID uuid.UUID, memberIDs []uuid.UUID) error
	Rename(ctx context.Context, id uuid.UUID, name string) error
	ListWithParticipants(ctx context.Context, ids []uuid.UUID) ([]models.Conversation, error)
}

type idRow struct {
	ID uuid.UUID
}

type directRow struct {
	ID      uuid.UUID
	Created bool
}

type conversationRepo struct {
	DB *gorm.DB
}

func NewConversationRepo(db *GormDB) ConversationRepository {
	return &conversationRepo{db.DB}
}

// LookupOrCreateDirect runs the store-side procedure, the only path that is atomic without
// relying on the caller. created is true only for the call that inserted the conversation.
func (r *conversationRepo) LookupOrCreateDirect(ctx context.Context, userA, userB uuid.UUID) (uuid.UUID, bool, error) {
	var row directRow
	err := r.DB.WithContext(ctx).
		Raw("SELECT convo AS id, created FROM get_or_create_direct_conversation(?, ?)", userA, userB).
		Scan(&row).Error
	if err != nil {
		return uuid.Nil, false, errors.Wrap(err, "get_or_create_direct_conversation")
	}
	if row.ID == uuid.Nil {
		return uuid.Nil, false, errors.New("get_or_create_direct_conversation returned no id")
	}
	return row.ID, row.Created, nil
}

func (r *conversationRepo) ConversationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB.WithContext(ctx).
		Model(&models.Participant{}).
		Where("user_id = ?", userID).
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not list conversation ids")
	}
	return ids, nil
}

// FindDirectAmong keeps the non-group conversations with exactly two participants, oldest first.
func (r *conversationRepo) FindDirectAmong(ctx context.Context, conversationIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	var rows []idRow
	err := r.DB.WithContext(ctx).Raw(`
		SELECT c.id
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE c.id IN ? AND c.is_group = false
		GROUP BY c.id, c.created_at
		HAVING COUNT(p.id) = 2
		ORDER BY c.created_at ASC`, conversationIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not filter direct conversations")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r *conversationRepo) FindByDirectKey(ctx context.Context, key string) (*models.Conversation, error) {
	convo := &models.Conversation{}
	if err := r.DB.WithContext(ctx).Where("direct_key = ?", key).First(convo).Error; err != nil {
		return nil, errors.Wrap(err, "could not find direct conversation")
	}
	return convo, nil
}

func (r *conversationRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	convo := &models.Conversation{}
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(convo).Error; err != nil {
		return nil, errors.Wrap(err, "could not find conversation")
	}
	return convo, nil
}

func (r *conversationRepo) CreateDirect(ctx context.Context, convo *models.Conversation, creatorID, otherID uuid.UUID) error {
	now := time.Now()
	rows := []models.Participant{
		{ID: uuid.New(), UserID: creatorID, Role: models.RoleAdmin, Status: models.StatusAccepted, JoinedAt: now},
		{ID: uuid.New(), UserID: otherID, Role: models.RoleMember, Status: models.StatusAccepted, JoinedAt: now},
	}
	err := r.insertConversation(ctx, convo, rows)
	if isUniqueViolation(err) {
		return ErrDuplicateDirect
	}
	return err
}

func (r *conversationRepo) CreateGroup(ctx context.Context, convo *models.Conversation, creatorID uuid.UUID, memberIDs []uuid.UUID) error {
	now := time.Now()
	rows := []models.Participant{
		{ID: uuid.New(), UserID: creatorID, Role: models.RoleAdmin, Status: models.StatusAccepted, JoinedAt: now},
	}
	for _, memberID := range memberIDs {
		rows = append(rows, models.Participant{
			ID: uuid.New(), UserID: memberID, Role: models.RoleMember, Status: models.StatusPending, JoinedAt: now,
		})
	}
	return r.insertConversation(ctx, convo, rows)
}

// insertConversation writes the conversation and its participants in one transaction so a
// conversation never exists without its members.
func (r *conversationRepo) insertConversation(ctx context.Context, convo *models.Conversation, rows []models.Participant) error {
	if convo.ID == uuid.Nil {
		convo.ID = uuid.New()
	}
	if convo.CreatedAt.IsZero() {
		convo.CreatedAt = time.Now()
	}
	if convo.LastMessageAt.IsZero() {
		convo.LastMessageAt = convo.CreatedAt
	}
	for i := range rows {
		rows[i].ConversationID = convo.ID
	}

	tx := r.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return errors.Wrap(tx.Error, "could not begin transaction")
	}

	if err := tx.Omit("Participants").Create(convo).Error; err != nil {
		tx.Rollback()
		return errors.Wrap(err, "could not create conversation")
	}

	if err := tx.Create(&rows).Error; err != nil {
		log.Printf("rolling back conversation %s: %v", convo.ID, err)
		tx.Rollback()
		return errors.Wrap(err, "could not add participants")
	}

	if err := tx.Commit().Error; err != nil {
		return errors.Wrap(err, "could not commit conversation")
	}
	convo.Participants = rows
	return nil
}

func (r *conversationRepo) Rename(ctx context.Context, id uuid.UUID, name string) error {
	result := r.DB.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ? AND is_group = ?", id, true).
		Update("name", name)
	if result.Error != nil {
		return errors.Wrap(result.Error, "could not rename conversation")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListWithParticipants loads the conversations and all their participants, most recent activity first.
func (r *conversationRepo) ListWithParticipants(ctx context.Context, ids []uuid.UUID) ([]models.Conversation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var convos []models.Conversation
	err := r.DB.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		Where("id IN ?", ids).
		Order("last_message_at DESC").
		Find(&convos).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not list conversations")
	}
	return convos, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
