package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/repo"
)

// overviewRow is the single-row aggregate over paid orders in the window.
type overviewRow struct {
	RevenueCents    int64
	CommissionCents int64
	OrderCount      int64
}

// VendorRevenue is one row of the top-vendors leaderboard.
type VendorRevenue struct {
	VendorID     uuid.UUID `json:"vendor_id"`
	RevenueCents int64     `json:"revenue_cents"`
	ItemsSold    int64     `json:"items_sold"`
}

// ProductRevenue is one row of the top-products leaderboard. The name is the
// order-time snapshot, so deleted products still report.
type ProductRevenue struct {
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name"`
	RevenueCents int64     `json:"revenue_cents"`
	UnitsSold    int64     `json:"units_sold"`
}

// Repository exposes read-only rollup queries. No write methods on purpose.
type Repository interface {
	Overview(ctx context.Context, since time.Time) (*overviewRow, error)
	TopVendors(ctx context.Context, since time.Time, limit int) ([]VendorRevenue, error)
	TopProducts(ctx context.Context, since time.Time, limit int) ([]ProductRevenue, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an analytics repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) Overview(ctx context.Context, since time.Time) (*overviewRow, error) {
	var row overviewRow
	err := r.DB(ctx).Raw(`
		SELECT
			COALESCE(SUM(o.total_cents), 0) AS revenue_cents,
			COALESCE((
				SELECT SUM(oi.commission_cents)
				FROM order_items oi
				JOIN orders po ON po.id = oi.order_id
				WHERE po.payment_status = 'paid'
				  AND po.created_at >= ?
				  AND oi.status NOT IN ('cancelled', 'refunded')
			), 0) AS commission_cents,
			COUNT(*) AS order_count
		FROM orders o
		WHERE o.payment_status = 'paid' AND o.created_at >= ?
	`, since, since).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) TopVendors(ctx context.Context, since time.Time, limit int) ([]VendorRevenue, error) {
	var rows []VendorRevenue
	err := r.DB(ctx).Raw(`
		SELECT oi.vendor_id,
			COALESCE(SUM(oi.subtotal_cents), 0) AS revenue_cents,
			COALESCE(SUM(oi.quantity), 0) AS items_sold
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.payment_status = 'paid'
		  AND o.created_at >= ?
		  AND oi.status NOT IN ('cancelled', 'refunded')
		GROUP BY oi.vendor_id
		ORDER BY revenue_cents DESC
		LIMIT ?
	`, since, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) TopProducts(ctx context.Context, since time.Time, limit int) ([]ProductRevenue, error) {
	var rows []ProductRevenue
	err := r.DB(ctx).Raw(`
		SELECT oi.product_id,
			MAX(oi.product_name) AS product_name,
			COALESCE(SUM(oi.subtotal_cents), 0) AS revenue_cents,
			COALESCE(SUM(oi.quantity), 0) AS units_sold
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.payment_status = 'paid'
		  AND o.created_at >= ?
		  AND oi.status NOT IN ('cancelled', 'refunded')
		GROUP BY oi.product_id
		ORDER BY revenue_cents DESC
		LIMIT ?
	`, since, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
