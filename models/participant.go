package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Participant is one user's membership in one conversation. UnreadCount is maintained by the
// store on every message insert and reset when the user marks the thread read.
type Participant struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_participants_conversation_user,priority:1" json:"conversation_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_participants_conversation_user,priority:2;index" json:"user_id"`
	Role           Role      `gorm:"type:varchar(16);not null;default:member" json:"role"`
	Status         Status    `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	UnreadCount    int       `gorm:"not null;default:0" json:"-"`
	JoinedAt       time.Time `gorm:"not null" json:"joined_at"`
}

type ParticipantWithProfile struct {
	Participant
	Profile *Profile `json:"profile"`
}

type InviteRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required,min=1,dive,required"`
}

type InviteResponse struct {
	Added []uuid.UUID `json:"added"`
}

type RespondToInviteRequest struct {
	Decision Status `json:"decision" binding:"required,oneof=accepted rejected"`
}

type ChangeRoleRequest struct {
	Role Role `json:"role" binding:"required,oneof=admin member"`
}
