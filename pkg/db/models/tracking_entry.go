package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/pkg/enums"
)

// TrackingEntry is one row of an order item's append-only shipment log. An
// item may accumulate several entries (carrier corrections); only the entry
// carrying DeliveredAt is authoritative for the delivered transition.
type TrackingEntry struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderItemID    uuid.UUID            `gorm:"column:order_item_id;type:uuid;not null"`
	Carrier        string               `gorm:"column:carrier;not null"`
	TrackingNumber string               `gorm:"column:tracking_number;not null"`
	TrackingURL    *string              `gorm:"column:tracking_url"`
	Status         enums.TrackingStatus `gorm:"column:status;type:tracking_status;not null;default:'label_created'"`
	DeliveredAt    *time.Time           `gorm:"column:delivered_at"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}
