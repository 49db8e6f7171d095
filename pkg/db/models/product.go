package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the slice of the catalog this subsystem reads: price, stock and
// vendor ownership. Catalog management itself lives elsewhere.
type Product struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID    uuid.UUID `gorm:"column:vendor_id;type:uuid;not null"`
	Name        string    `gorm:"column:name;not null"`
	VariantName *string   `gorm:"column:variant_name"`
	PriceCents  int       `gorm:"column:price_cents;not null"`
	StockQty    int       `gorm:"column:stock_qty;not null;default:0"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
