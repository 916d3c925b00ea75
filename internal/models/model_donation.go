package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/keybase-market/pimarket/pkg/types"
)

// Donation is the persisted outcome of a completed payment. The composite
// unique index on (pi_payment_id, txid) is what makes duplicate completion
// notifications harmless.
type Donation struct {
	ID     string `gorm:"column:id;primary_key;type:uuid;index:idx_donation_user_id,priority:2,sort:desc" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;not null;index:idx_donation_user_id,priority:1" json:"user_id"`

	Amount      float64              `gorm:"column:amount;type:numeric;not null" json:"amount"`
	PiPaymentID string               `gorm:"column:pi_payment_id;type:varchar(128);not null;uniqueIndex:unique_payment_txid,priority:1" json:"pi_payment_id"`
	TxID        string               `gorm:"column:txid;type:varchar(128);not null;uniqueIndex:unique_payment_txid,priority:2" json:"txid"`
	Status      types.DonationStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`

	Memo     string            `gorm:"column:memo;type:varchar(512)" json:"memo"`
	Metadata datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Donation) TableName() string {
	return "donation"
}
