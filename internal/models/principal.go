package models

import "time"

type Role string

const (
	RoleRequester     Role = "requester"
	RoleApprover      Role = "approver"
	RoleAdministrator Role = "administrator"
)

type Principal struct {
	ID          int64     `yaml:"id" json:"id"`
	Role        Role      `yaml:"role" json:"role"`
	DisplayName string    `yaml:"display_name" json:"display_name"`
	TelegramID  int64     `yaml:"telegram_id" json:"telegram_id,omitempty"` // chat for lifecycle notifications, 0 when unknown
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
	UpdatedAt   time.Time `yaml:"-" json:"updated_at"`
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdministrator
}

type GroupMembership struct {
	GroupID int64 `yaml:"group_id" json:"group_id"`
	UserID  int64 `yaml:"user_id" json:"user_id"`
}
