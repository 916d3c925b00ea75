package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentEventLogStatus string

const (
	PaymentEventLogStatusReceived     PaymentEventLogStatus = "received"
	PaymentEventLogStatusHandled      PaymentEventLogStatus = "handled"
	PaymentEventLogStatusHandleFailed PaymentEventLogStatus = "handle_failed"
)

type PaymentEventPhase string

const (
	PaymentEventPhaseApprove  PaymentEventPhase = "approve"
	PaymentEventPhaseComplete PaymentEventPhase = "complete"
	PaymentEventPhaseCancel   PaymentEventPhase = "cancel"
	PaymentEventPhaseError    PaymentEventPhase = "error"
	PaymentEventPhaseSweep    PaymentEventPhase = "sweep"
)

// PaymentEventLog is the append-only audit record written around every
// payment callback. Use case: troubleshooting interrupted attempts.
type PaymentEventLog struct {
	ID        string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	PaymentID string            `gorm:"column:payment_id;type:varchar(128);index" json:"payment_id"`
	TxID      string            `gorm:"column:txid;type:varchar(128)" json:"txid"`
	UserUID   *string           `gorm:"column:user_uid;type:varchar(64)" json:"user_uid"`
	TraceID   string            `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Phase     PaymentEventPhase `gorm:"column:phase;type:varchar(32);not null" json:"phase"`

	Data   datatypes.JSON        `gorm:"column:data;type:jsonb" json:"data"`
	Result *datatypes.JSON       `gorm:"column:result;type:jsonb" json:"result"`
	Status PaymentEventLogStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PaymentEventLog) TableName() string {
	return "payment_event_log"
}
