package coupons

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/pricing"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
)

// Rejection reasons surfaced in error details.
const (
	ReasonNotFound       = "not_found"
	ReasonNotStarted     = "not_started"
	ReasonExpired        = "expired"
	ReasonUsageExhausted = "usage_exhausted"
	ReasonBelowMinimum   = "below_minimum"
)

// Resolution pairs the stored coupon with the discount the pricing path
// should apply for it.
type Resolution struct {
	Coupon   *models.Coupon
	Discount pricing.Discount
}

// Service resolves coupon codes against a subtotal and consumes redemptions.
type Service interface {
	Resolve(ctx context.Context, code string, subtotalCents int, now time.Time) (*Resolution, error)
	// RedeemTx consumes one redemption inside the caller's transaction.
	RedeemTx(tx *gorm.DB, coupon *models.Coupon) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &service{repo: repo}, nil
}

// Resolve validates the code against its window, redemption ceiling and
// minimum subtotal. Codes fold case; the stored form is lowercase.
func (s *service) Resolve(ctx context.Context, code string, subtotalCents int, now time.Time) (*Resolution, error) {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if subtotalCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must be non-negative")
	}

	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading coupon")
	}
	if coupon == nil {
		return nil, rejection(pkgerrors.CodeNotFound, "coupon not found", ReasonNotFound, nil)
	}

	if now.Before(coupon.StartsAt) {
		return nil, rejection(pkgerrors.CodeValidation, "coupon is not active yet", ReasonNotStarted, map[string]any{
			"startsAt": coupon.StartsAt,
		})
	}
	if !now.Before(coupon.ExpiresAt) {
		return nil, rejection(pkgerrors.CodeValidation, "coupon has expired", ReasonExpired, map[string]any{
			"expiredAt": coupon.ExpiresAt,
		})
	}
	if coupon.MaxRedemptions != nil && coupon.RedemptionCount >= *coupon.MaxRedemptions {
		return nil, rejection(pkgerrors.CodeConflict, "coupon redemptions exhausted", ReasonUsageExhausted, nil)
	}
	if coupon.MinSubtotalCents != nil && subtotalCents < *coupon.MinSubtotalCents {
		return nil, rejection(pkgerrors.CodeValidation, "subtotal below coupon minimum", ReasonBelowMinimum, map[string]any{
			"minSubtotalCents": *coupon.MinSubtotalCents,
		})
	}

	discount, err := discountFor(coupon)
	if err != nil {
		return nil, err
	}
	return &Resolution{Coupon: coupon, Discount: discount}, nil
}

func (s *service) RedeemTx(tx *gorm.DB, coupon *models.Coupon) error {
	if coupon == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon is required")
	}
	ok, err := s.repo.IncrementRedemptionTx(tx, coupon.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "redeeming coupon")
	}
	if !ok {
		// Another checkout consumed the last redemption after we resolved.
		return rejection(pkgerrors.CodeConflict, "coupon redemptions exhausted", ReasonUsageExhausted, nil)
	}
	return nil
}

func discountFor(coupon *models.Coupon) (pricing.Discount, error) {
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		if coupon.PercentOff == nil {
			return pricing.Discount{}, pkgerrors.New(pkgerrors.CodeInternal, "percentage coupon missing percent_off")
		}
		discount := pricing.Discount{
			Type:       enums.DiscountTypePercentage,
			PercentOff: *coupon.PercentOff,
		}
		if coupon.MaxDiscountCents != nil {
			discount.MaxDiscountCents = *coupon.MaxDiscountCents
		}
		return discount, nil
	case enums.DiscountTypeFixed:
		if coupon.AmountOffCents == nil {
			return pricing.Discount{}, pkgerrors.New(pkgerrors.CodeInternal, "fixed coupon missing amount_off_cents")
		}
		return pricing.Discount{
			Type:           enums.DiscountTypeFixed,
			AmountOffCents: *coupon.AmountOffCents,
		}, nil
	default:
		return pricing.Discount{}, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown discount type %q", coupon.DiscountType))
	}
}

func rejection(code pkgerrors.Code, message, reason string, extra map[string]any) error {
	details := map[string]any{"reason": reason}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(code, message).WithDetails(details)
}
