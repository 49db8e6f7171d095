package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/repo"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	"github.com/mfigueroa/bazario-backend/pkg/pagination"
)

// claimedTotals carries the sums over the order items a payout claimed.
type claimedTotals struct {
	ItemsCount      int
	SubtotalCents   int64
	CommissionCents int64
}

// Repository persists payouts and performs the item-claiming writes that
// guard against double-aggregation.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Payout, string, error)

	VendorIDsWithUnclaimedDeliveriesTx(tx *gorm.DB, cutoff time.Time) ([]uuid.UUID, error)
	LastPeriodEndTx(tx *gorm.DB, vendorID uuid.UUID) (*time.Time, error)
	// ClaimDeliveredItemsTx stamps payout_id onto every delivered, unclaimed
	// item of the vendor inside the period. The `payout_id IS NULL` predicate
	// makes reruns claim nothing.
	ClaimDeliveredItemsTx(tx *gorm.DB, vendorID, payoutID uuid.UUID, periodStart, cutoff time.Time) (int64, error)
	ClaimedTotalsTx(tx *gorm.DB, payoutID uuid.UUID) (*claimedTotals, error)
	CreateTx(tx *gorm.DB, payout *models.Payout) error
	GetByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Payout, error)
	// TransitionTx moves a payout between statuses with a conditional UPDATE;
	// false means the payout was not in any of the expected statuses.
	TransitionTx(tx *gorm.DB, payoutID uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (bool, error)

	Summary(ctx context.Context, vendorID uuid.UUID, monthStart time.Time) (*VendorSummary, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a payouts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.DB(ctx).First(&payout, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Payout, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.DB(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var payouts []models.Payout
	if err := query.Find(&payouts).Error; err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(payouts) > limit {
		payouts = payouts[:limit]
		last := payouts[len(payouts)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return payouts, next, nil
}

func (r *repository) VendorIDsWithUnclaimedDeliveriesTx(tx *gorm.DB, cutoff time.Time) ([]uuid.UUID, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var ids []uuid.UUID
	err := tx.Model(&models.OrderItem{}).
		Distinct("vendor_id").
		Where("status = ? AND payout_id IS NULL AND created_at <= ?", enums.OrderItemStatusDelivered, cutoff).
		Pluck("vendor_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) LastPeriodEndTx(tx *gorm.DB, vendorID uuid.UUID) (*time.Time, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var payout models.Payout
	err := tx.
		Where("vendor_id = ?", vendorID).
		Order("period_end DESC").
		First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout.PeriodEnd, nil
}

func (r *repository) ClaimDeliveredItemsTx(tx *gorm.DB, vendorID, payoutID uuid.UUID, periodStart, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	result := tx.Model(&models.OrderItem{}).
		Where("vendor_id = ? AND status = ? AND payout_id IS NULL AND created_at > ? AND created_at <= ?",
			vendorID, enums.OrderItemStatusDelivered, periodStart, cutoff).
		Update("payout_id", payoutID)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) ClaimedTotalsTx(tx *gorm.DB, payoutID uuid.UUID) (*claimedTotals, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var row struct {
		ItemsCount      int
		SubtotalCents   int64
		CommissionCents int64
	}
	err := tx.Model(&models.OrderItem{}).
		Select("COUNT(*) AS items_count, COALESCE(SUM(subtotal_cents), 0) AS subtotal_cents, COALESCE(SUM(commission_cents), 0) AS commission_cents").
		Where("payout_id = ?", payoutID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &claimedTotals{
		ItemsCount:      row.ItemsCount,
		SubtotalCents:   row.SubtotalCents,
		CommissionCents: row.CommissionCents,
	}, nil
}

func (r *repository) CreateTx(tx *gorm.DB, payout *models.Payout) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(payout).Error
}

func (r *repository) GetByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Payout, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var payout models.Payout
	err := tx.First(&payout, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

func (r *repository) TransitionTx(tx *gorm.DB, payoutID uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	merged := map[string]any{"status": to}
	for column, value := range updates {
		merged[column] = value
	}
	result := tx.Model(&models.Payout{}).
		Where("id = ? AND status IN ?", payoutID, from).
		Updates(merged)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Summary(ctx context.Context, vendorID uuid.UUID, monthStart time.Time) (*VendorSummary, error) {
	var summary VendorSummary
	err := r.DB(ctx).Raw(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN amount_cents ELSE 0 END), 0)    AS pending_amount_cents,
			COALESCE(SUM(CASE WHEN status = 'processing' THEN amount_cents ELSE 0 END), 0) AS processing_amount_cents,
			COALESCE(SUM(CASE WHEN status = 'completed' AND processed_at >= ? THEN amount_cents ELSE 0 END), 0) AS paid_this_month_cents,
			COALESCE(SUM(CASE WHEN status = 'completed' THEN amount_cents ELSE 0 END), 0)  AS total_paid_cents
		FROM payouts
		WHERE vendor_id = ?
	`, monthStart, vendorID).Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
