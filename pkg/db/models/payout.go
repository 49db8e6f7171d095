package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/pkg/enums"
)

// Payout is one settlement period for one vendor. Periods are contiguous and
// non-overlapping per vendor, and the boundaries never change once assigned,
// even across failed execution attempts. AmountCents is net to the vendor;
// CommissionCents records the platform's cut for the same items.
type Payout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID        uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null"`
	PeriodStart     time.Time          `gorm:"column:period_start;not null"`
	PeriodEnd       time.Time          `gorm:"column:period_end;not null"`
	ItemsCount      int                `gorm:"column:items_count;not null"`
	AmountCents     int                `gorm:"column:amount_cents;not null"`
	CommissionCents int                `gorm:"column:commission_cents;not null"`
	Status          enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	FailureReason   *string            `gorm:"column:failure_reason"`
	ProcessedAt     *time.Time         `gorm:"column:processed_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
