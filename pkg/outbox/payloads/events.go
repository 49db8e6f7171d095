package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/pkg/enums"
)

// OrderCreatedEvent signals a new order to one vendor. Checkout emits one
// event per vendor represented in the split.
type OrderCreatedEvent struct {
	OrderID             uuid.UUID `json:"order_id"`
	OrderNumber         string    `json:"order_number"`
	BuyerID             uuid.UUID `json:"buyer_id"`
	VendorID            uuid.UUID `json:"vendor_id"`
	ItemCount           int       `json:"item_count"`
	VendorSubtotalCents int64     `json:"vendor_subtotal_cents"`
	OrderTotalCents     int64     `json:"order_total_cents"`
	PaymentRef          string    `json:"payment_ref"`
}

// OrderCancelledEvent is emitted when a buyer cancels a pre-processing order.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderItemStateChangedEvent records a fulfillment transition on a single item.
type OrderItemStateChangedEvent struct {
	OrderItemID uuid.UUID             `json:"order_item_id"`
	OrderID     uuid.UUID             `json:"order_id"`
	VendorID    uuid.UUID             `json:"vendor_id"`
	FromStatus  enums.OrderItemStatus `json:"from_status"`
	ToStatus    enums.OrderItemStatus `json:"to_status"`
	Tracking    string                `json:"tracking,omitempty"`
}

// OrderItemDeliveredEvent marks an item as payout-eligible.
type OrderItemDeliveredEvent struct {
	OrderItemID   uuid.UUID `json:"order_item_id"`
	OrderID       uuid.UUID `json:"order_id"`
	VendorID      uuid.UUID `json:"vendor_id"`
	SubtotalCents int64     `json:"subtotal_cents"`
	DeliveredAt   time.Time `json:"delivered_at"`
}

// PayoutCreatedEvent surfaces a newly aggregated vendor payout.
type PayoutCreatedEvent struct {
	PayoutID        uuid.UUID `json:"payout_id"`
	VendorID        uuid.UUID `json:"vendor_id"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	ItemsCount      int       `json:"items_count"`
	AmountCents     int64     `json:"amount_cents"`
	CommissionCents int64     `json:"commission_cents"`
}

// PayoutCompletedEvent reports a successful transfer to the vendor.
type PayoutCompletedEvent struct {
	PayoutID    uuid.UUID `json:"payout_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	AmountCents int64     `json:"amount_cents"`
	ProcessedAt time.Time `json:"processed_at"`
}

// PayoutFailedEvent reports a failed transfer; the payout stays retryable.
type PayoutFailedEvent struct {
	PayoutID      uuid.UUID `json:"payout_id"`
	VendorID      uuid.UUID `json:"vendor_id"`
	AmountCents   int64     `json:"amount_cents"`
	FailureReason string    `json:"failure_reason"`
}
