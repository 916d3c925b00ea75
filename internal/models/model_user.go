package models

import (
	"time"

	"github.com/keybase-market/pimarket/pkg/types"
)

// User is the local record for a Pi-Network identity. PiUID is the
// correlation key for all reconciliation; Role is owned by the admin and
// seller-approval flows and must never be written during authentication.
type User struct {
	ID       string     `gorm:"column:id;primary_key;type:uuid" json:"id"`
	PiUID    string     `gorm:"column:pi_uid;type:varchar(64);not null;uniqueIndex" json:"pi_uid"`
	Username *string    `gorm:"column:username;type:varchar(64);uniqueIndex" json:"username"`
	Role     types.Role `gorm:"column:role;type:varchar(16);not null;default:'reader'" json:"role"`

	WalletAddress *string `gorm:"column:wallet_address;type:varchar(64)" json:"wallet_address"`
	// AccessToken is the last verified bearer token. Never serialized.
	AccessToken     *string    `gorm:"column:access_token;type:varchar(512)" json:"-"`
	AuthenticatedAt *time.Time `gorm:"column:authenticated_at" json:"authenticated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// DisplayName prefers the human-readable username, falling back to the
// gateway identity.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return u.PiUID
}

// Sanitized returns a copy safe to hand to callers outside the
// reconciliation flow.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.AccessToken = nil
	return &cp
}
