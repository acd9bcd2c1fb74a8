package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the profile source. Accounts are created by the identity service; this service
// only reads them and records push tokens.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Fullname    string    `json:"fullname"`
	Username    string    `gorm:"uniqueIndex;not null" json:"username"`
	Email       string    `gorm:"uniqueIndex" json:"email"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	DeviceToken string    `json:"-"`
	IsBlocked   bool      `gorm:"default:false" json:"is_blocked"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Profile is the author projection joined onto messages and participants.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
}

func (u *User) Profile() *Profile {
	return &Profile{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

type DeviceTokenRequest struct {
	Token string `json:"token" binding:"required,max=4096" conform:"trim"`
}
