package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/pkg/enums"
)

// Coupon is immutable once issued and applied by reference, never copied into
// a cart. Codes are stored lowercase; lookups fold case.
type Coupon struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code             string             `gorm:"column:code;not null;uniqueIndex:ux_coupons_code"`
	DiscountType     enums.DiscountType `gorm:"column:discount_type;type:discount_type;not null"`
	PercentOff       *int               `gorm:"column:percent_off"`
	AmountOffCents   *int               `gorm:"column:amount_off_cents"`
	MaxDiscountCents *int               `gorm:"column:max_discount_cents"`
	MinSubtotalCents *int               `gorm:"column:min_subtotal_cents"`
	StartsAt         time.Time          `gorm:"column:starts_at;not null"`
	ExpiresAt        time.Time          `gorm:"column:expires_at;not null"`
	MaxRedemptions   *int               `gorm:"column:max_redemptions"`
	RedemptionCount  int                `gorm:"column:redemption_count;not null;default:0"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
}
