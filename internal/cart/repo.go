package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/repo"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
)

// Repository persists carts and their lines. One active cart per buyer is
// enforced by a partial unique index.
type Repository interface {
	GetActive(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error)
	GetActiveTx(tx *gorm.DB, buyerID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	FindLine(ctx context.Context, cartID uuid.UUID, productID uuid.UUID, variantID *uuid.UUID) (*models.CartLine, error)
	GetLine(ctx context.Context, cartID, lineID uuid.UUID) (*models.CartLine, error)
	CreateLine(ctx context.Context, line *models.CartLine) error
	UpdateLine(ctx context.Context, lineID uuid.UUID, quantity, unitPriceCents int) error
	DeleteLine(ctx context.Context, lineID uuid.UUID) error
	DeleteLines(ctx context.Context, cartID uuid.UUID) error
	SetCoupon(ctx context.Context, cartID uuid.UUID, code *string) error
	SetShippingMethod(ctx context.Context, cartID uuid.UUID, method enums.ShippingMethod) error
	// MarkConvertedTx flips the cart out of active inside the checkout
	// transaction, guarded on status so two checkouts cannot both convert.
	MarkConvertedTx(tx *gorm.DB, cartID uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) GetActive(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	return activeCart(r.DB(ctx), buyerID)
}

func (r *repository) GetActiveTx(tx *gorm.DB, buyerID uuid.UUID) (*models.Cart, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	return activeCart(tx, buyerID)
}

func activeCart(db *gorm.DB, buyerID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := db.Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).
		Where("buyer_id = ? AND status = ?", buyerID, enums.CartStatusActive).
		First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cart, nil
}

func (r *repository) Create(ctx context.Context, cart *models.Cart) error {
	return r.DB(ctx).Create(cart).Error
}

func (r *repository) FindLine(ctx context.Context, cartID uuid.UUID, productID uuid.UUID, variantID *uuid.UUID) (*models.CartLine, error) {
	query := r.DB(ctx).Where("cart_id = ? AND product_id = ?", cartID, productID)
	if variantID == nil {
		query = query.Where("variant_id IS NULL")
	} else {
		query = query.Where("variant_id = ?", *variantID)
	}
	var line models.CartLine
	if err := query.First(&line).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

func (r *repository) GetLine(ctx context.Context, cartID, lineID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.DB(ctx).Where("id = ? AND cart_id = ?", lineID, cartID).First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

func (r *repository) CreateLine(ctx context.Context, line *models.CartLine) error {
	return r.DB(ctx).Create(line).Error
}

func (r *repository) UpdateLine(ctx context.Context, lineID uuid.UUID, quantity, unitPriceCents int) error {
	return r.DB(ctx).Model(&models.CartLine{}).
		Where("id = ?", lineID).
		Updates(map[string]any{
			"quantity":         quantity,
			"unit_price_cents": unitPriceCents,
		}).Error
}

func (r *repository) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	return r.DB(ctx).Delete(&models.CartLine{}, "id = ?", lineID).Error
}

func (r *repository) DeleteLines(ctx context.Context, cartID uuid.UUID) error {
	return r.DB(ctx).Delete(&models.CartLine{}, "cart_id = ?", cartID).Error
}

func (r *repository) SetCoupon(ctx context.Context, cartID uuid.UUID, code *string) error {
	return r.DB(ctx).Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("applied_coupon_code", code).Error
}

func (r *repository) SetShippingMethod(ctx context.Context, cartID uuid.UUID, method enums.ShippingMethod) error {
	return r.DB(ctx).Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("shipping_method", method).Error
}

func (r *repository) MarkConvertedTx(tx *gorm.DB, cartID uuid.UUID, at time.Time) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	result := tx.Model(&models.Cart{}).
		Where("id = ? AND status = ?", cartID, enums.CartStatusActive).
		Updates(map[string]any{
			"status":       enums.CartStatusConverted,
			"converted_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
