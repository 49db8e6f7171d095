package checkout

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mfigueroa/bazario-backend/pkg/db/models"
)

// Repository covers the writes the split performs beyond cart, stock and
// coupon state: payment confirmation consumption and order creation.
type Repository interface {
	// GetPaymentConfirmationTx locks the confirmation row so two concurrent
	// checkouts with the same reference serialize.
	GetPaymentConfirmationTx(tx *gorm.DB, reference string) (*models.PaymentConfirmation, error)
	// ConsumePaymentConfirmationTx stamps consumed_at, guarded on it being
	// unset. False means another checkout consumed it first.
	ConsumePaymentConfirmationTx(tx *gorm.DB, reference string, at time.Time) (bool, error)
	CreateOrderTx(tx *gorm.DB, order *models.Order) error
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) GetPaymentConfirmationTx(tx *gorm.DB, reference string) (*models.PaymentConfirmation, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var confirmation models.PaymentConfirmation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference).
		First(&confirmation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &confirmation, nil
}

func (r *repository) ConsumePaymentConfirmationTx(tx *gorm.DB, reference string, at time.Time) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	result := tx.Model(&models.PaymentConfirmation{}).
		Where("reference = ? AND consumed_at IS NULL", reference).
		Update("consumed_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CreateOrderTx(tx *gorm.DB, order *models.Order) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(order).Error
}
