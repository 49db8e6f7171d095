package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/pkg/enums"
)

// Cart is the server-owned source of truth for a buyer's pending purchase.
// Clients hold a read-through cache; quoting always recomputes from this row.
type Cart struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID           uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null"`
	Status            enums.CartStatus      `gorm:"column:status;type:cart_status;not null;default:'active'"`
	AppliedCouponCode *string               `gorm:"column:applied_coupon_code"`
	ShippingMethod    enums.ShippingMethod  `gorm:"column:shipping_method;type:shipping_method;not null;default:'standard'"`
	Lines             []CartLine            `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	ConvertedAt       *time.Time            `gorm:"column:converted_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// CartLine stores the add-time price snapshot for one product in a cart. The
// snapshot is re-validated against live catalog state at quote and checkout.
type CartLine struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID         uuid.UUID  `gorm:"column:cart_id;type:uuid;not null"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	VendorID       uuid.UUID  `gorm:"column:vendor_id;type:uuid;not null"`
	Quantity       int        `gorm:"column:quantity;not null"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
