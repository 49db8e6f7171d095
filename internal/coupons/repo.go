package coupons

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/repo"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
)

// Repository loads coupons and applies redemption counters.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	// IncrementRedemptionTx bumps redemption_count with an optimistic guard
	// against the redemption ceiling. Returns false when the guard lost.
	IncrementRedemptionTx(tx *gorm.DB, couponID uuid.UUID) (bool, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.DB(ctx).Where("code = ?", code).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) IncrementRedemptionTx(tx *gorm.DB, couponID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	result := tx.Model(&models.Coupon{}).
		Where("id = ? AND (max_redemptions IS NULL OR redemption_count < max_redemptions)", couponID).
		Update("redemption_count", gorm.Expr("redemption_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
