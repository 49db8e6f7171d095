package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentConfirmation is the order-side record of a capture performed by the
// external payment collaborator. Checkout consumes it exactly once; a
// reference that is missing, foreign, or already consumed aborts the split
// before anything is written.
type PaymentConfirmation struct {
	Reference   string     `gorm:"column:reference;primaryKey"`
	BuyerID     uuid.UUID  `gorm:"column:buyer_id;type:uuid;not null"`
	AmountCents int        `gorm:"column:amount_cents;not null"`
	ConsumedAt  *time.Time `gorm:"column:consumed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
