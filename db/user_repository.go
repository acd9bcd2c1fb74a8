package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/techagentng/spotchat/models"
	"gorm.io/gorm"
)

type UserRepository interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error)
	UpdateDeviceToken(ctx context.Context, userID uuid.UUID, token string) error
	FindDeviceTokens(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type userRepo struct {
	DB *gorm.DB
}

func NewUserRepo(db *GormDB) UserRepository {
	return &userRepo{db.DB}
}

func (u *userRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := u.DB.WithContext(ctx).Where("id = ?", id).First(user).Error
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("could not find user %s", id))
	}
	return user, nil
}

// FindProfiles loads the profiles of all given users in one query. Unknown ids are absent
// from the result.
func (u *userRepo) FindProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	profiles := make(map[uuid.UUID]*models.Profile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}
	var users []models.User
	err := u.DB.WithContext(ctx).
		Select("id", "username", "avatar_url").
		Where("id IN ?", ids).
		Find(&users).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not load profiles")
	}
	for i := range users {
		profiles[users[i].ID] = users[i].Profile()
	}
	return profiles, nil
}

func (u *userRepo) UpdateDeviceToken(ctx context.Context, userID uuid.UUID, token string) error {
	result := u.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("device_token", token)
	if result.Error != nil {
		return errors.Wrap(result.Error, "could not update device token")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindDeviceTokens returns the registered push tokens of the given users. Users without a
// token are skipped.
func (u *userRepo) FindDeviceTokens(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	tokens := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return tokens, nil
	}
	var users []models.User
	err := u.DB.WithContext(ctx).
		Select("id", "device_token").
		Where("id IN ? AND device_token <> ''", ids).
		Find(&users).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not load device tokens")
	}
	for _, user := range users {
		tokens[user.ID] = user.DeviceToken
	}
	return tokens, nil
}
