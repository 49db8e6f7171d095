package vendors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/repo"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
)

// Repository reads vendor records: commission rates at checkout, payout
// onboarding state at payout execution.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Vendor, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.DB(ctx).First(&vendor, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) ListByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Vendor, error) {
	result := make(map[uuid.UUID]models.Vendor, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.Vendor
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, vendor := range rows {
		result[vendor.ID] = vendor
	}
	return result, nil
}
