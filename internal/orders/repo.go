package orders

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

// Repository provides order and order item persistence. Transition methods
// use conditional UPDATEs keyed on the expected current status; zero affected
// rows means another actor won the race.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListItemsByVendor(ctx context.Context, vendorID uuid.UUID, status *enums.OrderItemStatus, params pagination.Params) ([]models.OrderItem, string, error)

	GetOrderTx(tx *gorm.DB, id uuid.UUID) (*models.Order, error)
	GetItemTx(tx *gorm.DB, id uuid.UUID) (*models.OrderItem, error)
	TransitionItemTx(tx *gorm.DB, itemID uuid.UUID, from, to enums.OrderItemStatus, deliveredAt *time.Time) (bool, error)
	CreateTrackingEntryTx(tx *gorm.DB, entry *models.TrackingEntry) error
	MarkTrackingDeliveredTx(tx *gorm.DB, itemID uuid.UUID, deliveredAt time.Time) error
	UpdateOrderTx(tx *gorm.DB, orderID uuid.UUID, updates map[string]any) error
	CountItemsNotInStatusTx(tx *gorm.DB, orderID uuid.UUID, status enums.OrderItemStatus) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.created_at ASC")
		}).
		Preload("Items.Tracking").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.DB(ctx).
		Preload("Items").
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(orders) > limit {
		orders = orders[:limit]
		last := orders[len(orders)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return orders, next, nil
}

func (r *repository) ListItemsByVendor(ctx context.Context, vendorID uuid.UUID, status *enums.OrderItemStatus, params pagination.Params) ([]models.OrderItem, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.DB(ctx).
		Preload("Tracking").
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var items []models.OrderItem
	if err := query.Find(&items).Error; err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return items, next, nil
}

func (r *repository) GetOrderTx(tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var order models.Order
	err := tx.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_items.created_at ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetItemTx(tx *gorm.DB, id uuid.UUID) (*models.OrderItem, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var item models.OrderItem
	err := tx.First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) TransitionItemTx(tx *gorm.DB, itemID uuid.UUID, from, to enums.OrderItemStatus, deliveredAt *time.Time) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	updates := map[string]any{"status": to}
	if deliveredAt != nil {
		updates["delivered_at"] = *deliveredAt
	}
	result := tx.Model(&models.OrderItem{}).
		Where("id = ? AND status = ?", itemID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CreateTrackingEntryTx(tx *gorm.DB, entry *models.TrackingEntry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(entry).Error
}

// MarkTrackingDeliveredTx stamps the most recent tracking entry, making it
// the authoritative delivery record.
func (r *repository) MarkTrackingDeliveredTx(tx *gorm.DB, itemID uuid.UUID, deliveredAt time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	var entry models.TrackingEntry
	err := tx.
		Where("order_item_id = ?", itemID).
		Order("created_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return tx.Model(&models.TrackingEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":       enums.TrackingStatusDelivered,
			"delivered_at": deliveredAt,
		}).Error
}

func (r *repository) UpdateOrderTx(tx *gorm.DB, orderID uuid.UUID, updates map[string]any) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if len(updates) == 0 {
		return nil
	}
	return tx.Model(&models.Order{}).Where("id = ?", orderID).Updates(updates).Error
}

func (r *repository) CountItemsNotInStatusTx(tx *gorm.DB, orderID uuid.UUID, status enums.OrderItemStatus) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	var count int64
	err := tx.Model(&models.OrderItem{}).
		Where("order_id = ? AND status <> ?", orderID, status).
		Count(&count).Error
	return count, err
}
