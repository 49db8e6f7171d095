package analytics

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
)

// Period is an admin-selectable reporting window.
type Period string

const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period90d Period = "90d"
	Period1y  Period = "1y"
)

const topLimit = 5

// Overview is the admin dashboard rollup for one period. Revenue and AOV are
// computed over paid orders; commission excludes cancelled and refunded items.
type Overview struct {
	Period          Period           `json:"period"`
	RevenueCents    int64            `json:"revenue_cents"`
	CommissionCents int64            `json:"commission_cents"`
	OrderCount      int64            `json:"order_count"`
	AOVCents        int64            `json:"aov_cents"`
	TopVendors      []VendorRevenue  `json:"top_vendors"`
	TopProducts     []ProductRevenue `json:"top_products"`
}

// Service computes read-only revenue rollups.
type Service interface {
	Overview(ctx context.Context, period Period) (*Overview, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds the analytics service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("analytics repository required")
	}
	return &service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Overview(ctx context.Context, period Period) (*Overview, error) {
	window, err := periodWindow(period)
	if err != nil {
		return nil, err
	}
	since := s.now().Add(-window)

	row, err := s.repo.Overview(ctx, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing overview")
	}
	topVendors, err := s.repo.TopVendors(ctx, since, topLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ranking vendors")
	}
	topProducts, err := s.repo.TopProducts(ctx, since, topLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ranking products")
	}

	overview := &Overview{
		Period:          period,
		RevenueCents:    row.RevenueCents,
		CommissionCents: row.CommissionCents,
		OrderCount:      row.OrderCount,
		TopVendors:      topVendors,
		TopProducts:     topProducts,
	}
	if row.OrderCount > 0 {
		overview.AOVCents = row.RevenueCents / row.OrderCount
	}
	return overview, nil
}

func periodWindow(period Period) (time.Duration, error) {
	switch period {
	case Period7d:
		return 7 * 24 * time.Hour, nil
	case Period30d:
		return 30 * 24 * time.Hour, nil
	case Period90d:
		return 90 * 24 * time.Hour, nil
	case Period1y:
		return 365 * 24 * time.Hour, nil
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown period %q", period))
	}
}
