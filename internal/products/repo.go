package products

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/repo"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
)

// Repository exposes the catalog reads and stock mutations the order
// lifecycle needs. Catalog management itself lives outside this system.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Product, error)
	// ReserveStockTx decrements stock only when enough remains. The
	// conditional UPDATE is the concurrency guard: a false return means
	// another checkout took the stock first.
	ReserveStockTx(tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	// RestockTx returns previously reserved units after a cancel or refund.
	RestockTx(tx *gorm.DB, productID uuid.UUID, qty int) error
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.DB(ctx).First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *repository) GetByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Product, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var product models.Product
	err := tx.First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *repository) ReserveStockTx(tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	if qty <= 0 {
		return false, errors.New("quantity must be positive")
	}
	result := tx.Model(&models.Product{}).
		Where("id = ? AND active = ? AND stock_qty >= ?", productID, true, qty).
		Update("stock_qty", gorm.Expr("stock_qty - ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) RestockTx(tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if qty <= 0 {
		return errors.New("quantity must be positive")
	}
	return tx.Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock_qty", gorm.Expr("stock_qty + ?", qty)).Error
}
