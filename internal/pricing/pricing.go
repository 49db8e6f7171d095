package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/mfigueroa/bazario-backend/pkg/config"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
)

// Line is one cart line as seen by the pricing path.
type Line struct {
	UnitPriceCents int
	Quantity       int
}

// Discount is the resolved coupon effect to apply to a quote. A nil Discount
// means no coupon.
type Discount struct {
	Type             enums.DiscountType
	PercentOff       int
	AmountOffCents   int
	MaxDiscountCents int // 0 means uncapped
}

// Summary is a fully computed price breakdown. Totals are derived in a fixed
// order: subtotal, discount, tax on the discounted subtotal, then shipping.
// Tax is never applied to shipping.
type Summary struct {
	SubtotalCents int `json:"subtotalCents"`
	DiscountCents int `json:"discountCents"`
	TaxCents      int `json:"taxCents"`
	ShippingCents int `json:"shippingCents"`
	TotalCents    int `json:"totalCents"`
}

// Engine computes quotes from configured rates. It holds no mutable state and
// performs no I/O, so a single value can be shared across requests.
type Engine struct {
	cfg config.PricingConfig
}

func NewEngine(cfg config.PricingConfig) Engine {
	return Engine{cfg: cfg}
}

// Quote prices the given lines. Intermediate percentage math runs on
// decimals and each monetary result is rounded half up to whole cents.
func (e Engine) Quote(lines []Line, discount *Discount, method enums.ShippingMethod) (Summary, error) {
	if len(lines) == 0 {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	if !method.IsValid() {
		return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping method")
	}

	subtotal := 0
	for _, line := range lines {
		if line.Quantity <= 0 {
			return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
		if line.UnitPriceCents < 0 {
			return Summary{}, pkgerrors.New(pkgerrors.CodeValidation, "line unit price must be non-negative")
		}
		subtotal += line.UnitPriceCents * line.Quantity
	}

	discountCents, err := e.discountCents(subtotal, discount)
	if err != nil {
		return Summary{}, err
	}

	taxable := subtotal - discountCents
	taxCents := roundCents(decimal.NewFromInt(int64(taxable)).Mul(e.cfg.TaxRate()))

	shippingCents := e.shippingCents(subtotal, method)

	return Summary{
		SubtotalCents: subtotal,
		DiscountCents: discountCents,
		TaxCents:      taxCents,
		ShippingCents: shippingCents,
		TotalCents:    taxable + taxCents + shippingCents,
	}, nil
}

func (e Engine) discountCents(subtotal int, discount *Discount) (int, error) {
	if discount == nil {
		return 0, nil
	}

	var raw int
	switch discount.Type {
	case enums.DiscountTypePercentage:
		if discount.PercentOff <= 0 || discount.PercentOff > 100 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "percent off must be between 1 and 100")
		}
		raw = roundCents(decimal.NewFromInt(int64(subtotal)).
			Mul(decimal.NewFromInt(int64(discount.PercentOff))).
			Div(decimal.NewFromInt(100)))
		if discount.MaxDiscountCents > 0 && raw > discount.MaxDiscountCents {
			raw = discount.MaxDiscountCents
		}
	case enums.DiscountTypeFixed:
		if discount.AmountOffCents <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount off must be positive")
		}
		raw = discount.AmountOffCents
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid discount type")
	}

	// A discount can never exceed what is being discounted.
	if raw > subtotal {
		raw = subtotal
	}
	return raw, nil
}

// shippingCents waives the baseline tier once the raw subtotal clears the
// free-shipping threshold. Upgraded tiers are always charged.
func (e Engine) shippingCents(subtotal int, method enums.ShippingMethod) int {
	if method.IsBaseline() {
		if subtotal >= e.cfg.FreeShippingThresholdCents {
			return 0
		}
		return e.cfg.StandardShippingCents
	}
	return e.cfg.ExpressShippingCents
}

// roundCents rounds half up (away from zero) to whole cents.
func roundCents(d decimal.Decimal) int {
	return int(d.Round(0).IntPart())
}
