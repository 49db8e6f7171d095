package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mfigueroa/bazario-backend/pkg/enums"
	"github.com/mfigueroa/bazario-backend/pkg/types"
)

// Order is one buyer checkout transaction. All monetary fields are frozen at
// creation and never recomputed from live prices. ShippedAt/DeliveredAt are
// display rollups; the per-item statuses are authoritative.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string              `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	BuyerID         uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'unpaid'"`
	PaymentRef      string              `gorm:"column:payment_ref;not null"`
	SubtotalCents   int                 `gorm:"column:subtotal_cents;not null"`
	DiscountCents   int                 `gorm:"column:discount_cents;not null;default:0"`
	TaxCents        int                 `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents   int                 `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents      int                 `gorm:"column:total_cents;not null"`
	CouponCode      *string             `gorm:"column:coupon_code"`
	ShippingAddress types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress  types.Address       `gorm:"column:billing_address;type:jsonb;serializer:json"`
	VendorIDs       pq.StringArray      `gorm:"column:vendor_ids;type:text[]"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	ShippedAt       *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time          `gorm:"column:delivered_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
