package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Vendor carries the commission rate and payout-provider onboarding state.
// The rate read at order creation is frozen onto each order item; later rate
// changes never apply retroactively.
type Vendor struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string          `gorm:"column:name;not null"`
	CommissionRate    decimal.Decimal `gorm:"column:commission_rate;type:numeric(6,4);not null"`
	PayoutsEnabled    bool            `gorm:"column:payouts_enabled;not null;default:false"`
	PayoutProviderRef *string         `gorm:"column:payout_provider_ref"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
