package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/pkg/enums"
)

// OrderItem is one vendor's portion of an order and the unit of fulfillment
// state. Product and variant names are denormalized so the row survives
// catalog edits and deletions. Rows are never deleted, only transitioned.
// PayoutID is set when an aggregation run claims the item; it is the
// double-payout guard.
type OrderItem struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	VendorID        uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null"`
	ProductID       uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	VariantID       *uuid.UUID            `gorm:"column:variant_id;type:uuid"`
	ProductName     string                `gorm:"column:product_name;not null"`
	VariantName     *string               `gorm:"column:variant_name"`
	Quantity        int                   `gorm:"column:quantity;not null"`
	UnitPriceCents  int                   `gorm:"column:unit_price_cents;not null"`
	SubtotalCents   int                   `gorm:"column:subtotal_cents;not null"`
	CommissionCents int                   `gorm:"column:commission_cents;not null"`
	Status          enums.OrderItemStatus `gorm:"column:status;type:order_item_status;not null;default:'pending'"`
	PayoutID        *uuid.UUID            `gorm:"column:payout_id;type:uuid"`
	Tracking        []TrackingEntry       `gorm:"foreignKey:OrderItemID;constraint:OnDelete:CASCADE"`
	DeliveredAt     *time.Time            `gorm:"column:delivered_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
