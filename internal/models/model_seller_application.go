package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/keybase-market/pimarket/pkg/types"
)

// SellerApplication is a user's request to be granted the seller role.
// One application per user; review is an admin operation.
type SellerApplication struct {
	ID     string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`

	BusinessName string `gorm:"column:business_name;type:varchar(128);not null" json:"business_name"`
	BusinessType string `gorm:"column:business_type;type:varchar(64);not null" json:"business_type"`
	Location     string `gorm:"column:location;type:varchar(128);not null" json:"location"`
	Description  string `gorm:"column:description;type:text;not null" json:"description"`
	Email        string `gorm:"column:email;type:varchar(128);not null" json:"email"`
	Phone        string `gorm:"column:phone;type:varchar(64)" json:"phone"`
	// OwnershipProof holds uploaded document references.
	OwnershipProof datatypes.JSON `gorm:"column:ownership_proof;type:jsonb;default:'[]'" json:"ownership_proof"`

	Status     types.SellerApplicationStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Notes      string                        `gorm:"column:notes;type:text" json:"notes"`
	ReviewedBy *string                       `gorm:"column:reviewed_by;type:uuid" json:"reviewed_by"`
	ReviewedAt *time.Time                    `gorm:"column:reviewed_at" json:"reviewed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SellerApplication) TableName() string {
	return "seller_application"
}

func (a *SellerApplication) Reviewed() bool {
	return a != nil && a.Status != types.SellerApplicationStatusPending
}
