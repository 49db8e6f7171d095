package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/internal/coupons"
	"github.com/mfigueroa/bazario-backend/internal/pricing"
	"github.com/mfigueroa/bazario-backend/internal/products"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
)

// Line issue reasons reported by Quote.
const (
	IssueProductMissing    = "product_missing"
	IssueProductInactive   = "product_inactive"
	IssueInsufficientStock = "insufficient_stock"
)

// LineIssue reports one cart line that cannot be fulfilled as priced.
type LineIssue struct {
	LineID       uuid.UUID `json:"lineId"`
	ProductID    uuid.UUID `json:"productId"`
	Reason       string    `json:"reason"`
	RequestedQty int       `json:"requestedQty"`
	AvailableQty int       `json:"availableQty"`
}

// AddLineInput carries the payload for adding a product to the cart.
type AddLineInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// QuoteResult is the cart priced against live catalog state.
type QuoteResult struct {
	Cart    *models.Cart
	Summary pricing.Summary
	// Resolution is non-nil when a coupon was applied and valid.
	Resolution *coupons.Resolution
}

// Service owns the buyer's active cart. Clients treat their local cart as a
// read-through cache; every quote recomputes from persisted state.
type Service interface {
	Get(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error)
	AddLine(ctx context.Context, buyerID uuid.UUID, input AddLineInput) (*models.Cart, error)
	UpdateLine(ctx context.Context, buyerID, lineID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveLine(ctx context.Context, buyerID, lineID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
	ApplyCoupon(ctx context.Context, buyerID uuid.UUID, code string) (*models.Cart, error)
	RemoveCoupon(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error)
	SelectShipping(ctx context.Context, buyerID uuid.UUID, method enums.ShippingMethod) (*models.Cart, error)
	Quote(ctx context.Context, buyerID uuid.UUID) (*QuoteResult, error)
}

type service struct {
	repo     Repository
	catalog  products.Repository
	coupons  coupons.Service
	pricer   pricing.Engine
	maxLines int
}

const defaultMaxLines = 100

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, catalog products.Repository, couponSvc coupons.Service, pricer pricing.Engine) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if couponSvc == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	return &service{
		repo:     repo,
		catalog:  catalog,
		coupons:  couponSvc,
		pricer:   pricer,
		maxLines: defaultMaxLines,
	}, nil
}

// Get returns the buyer's active cart, creating an empty one on first touch.
func (s *service) Get(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	return s.ensureCart(ctx, buyerID)
}

func (s *service) ensureCart(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	cart, err := s.repo.GetActive(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}
	if cart != nil {
		return cart, nil
	}
	cart = &models.Cart{
		ID:             uuid.New(),
		BuyerID:        buyerID,
		Status:         enums.CartStatusActive,
		ShippingMethod: enums.ShippingMethodStandard,
	}
	if err := s.repo.Create(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating cart")
	}
	return cart, nil
}

// AddLine re-reads the product's live price and vendor; an add for a product
// already in the cart merges quantities onto the fresh price snapshot.
func (s *service) AddLine(ctx context.Context, buyerID uuid.UUID, input AddLineInput) (*models.Cart, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	cart, err := s.ensureCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if len(cart.Lines) >= s.maxLines {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart line limit reached")
	}

	product, err := s.catalog.GetByID(ctx, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}

	existing, err := s.repo.FindLine(ctx, cart.ID, input.ProductID, input.VariantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart line")
	}
	if existing != nil {
		if err := s.repo.UpdateLine(ctx, existing.ID, existing.Quantity+input.Quantity, product.PriceCents); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating cart line")
		}
	} else {
		line := &models.CartLine{
			ID:             uuid.New(),
			CartID:         cart.ID,
			ProductID:      product.ID,
			VariantID:      input.VariantID,
			VendorID:       product.VendorID,
			Quantity:       input.Quantity,
			UnitPriceCents: product.PriceCents,
		}
		if err := s.repo.CreateLine(ctx, line); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating cart line")
		}
	}
	return s.reload(ctx, buyerID)
}

func (s *service) UpdateLine(ctx context.Context, buyerID, lineID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive; remove the line instead")
	}

	_, line, err := s.ownedLine(ctx, buyerID, lineID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLine(ctx, line.ID, quantity, line.UnitPriceCents); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating cart line")
	}
	return s.reload(ctx, buyerID)
}

func (s *service) RemoveLine(ctx context.Context, buyerID, lineID uuid.UUID) (*models.Cart, error) {
	_, line, err := s.ownedLine(ctx, buyerID, lineID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteLine(ctx, line.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "removing cart line")
	}
	return s.reload(ctx, buyerID)
}

func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	cart, err := s.ensureCart(ctx, buyerID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteLines(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing cart")
	}
	if err := s.repo.SetCoupon(ctx, cart.ID, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing coupon")
	}
	return nil
}

// ApplyCoupon validates the code against the current subtotal before storing
// it. The stored code is re-resolved at every quote and at checkout.
func (s *service) ApplyCoupon(ctx context.Context, buyerID uuid.UUID, code string) (*models.Cart, error) {
	cart, err := s.ensureCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if len(cart.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot apply a coupon to an empty cart")
	}

	subtotal := 0
	for _, line := range cart.Lines {
		subtotal += line.UnitPriceCents * line.Quantity
	}

	resolution, err := s.coupons.Resolve(ctx, code, subtotal, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	stored := strings.ToLower(strings.TrimSpace(resolution.Coupon.Code))
	if err := s.repo.SetCoupon(ctx, cart.ID, &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing coupon")
	}
	return s.reload(ctx, buyerID)
}

func (s *service) RemoveCoupon(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	cart, err := s.ensureCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetCoupon(ctx, cart.ID, nil); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "removing coupon")
	}
	return s.reload(ctx, buyerID)
}

func (s *service) SelectShipping(ctx context.Context, buyerID uuid.UUID, method enums.ShippingMethod) (*models.Cart, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping method")
	}
	cart, err := s.ensureCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetShippingMethod(ctx, cart.ID, method); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "selecting shipping method")
	}
	return s.reload(ctx, buyerID)
}

// Quote re-validates every line against live catalog state, then prices the
// cart. Stock problems are reported per line, not as one aggregate failure.
func (s *service) Quote(ctx context.Context, buyerID uuid.UUID) (*QuoteResult, error) {
	cart, err := s.ensureCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if len(cart.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	lines := make([]pricing.Line, 0, len(cart.Lines))
	issues := []LineIssue{}
	for i := range cart.Lines {
		line := &cart.Lines[i]
		product, err := s.catalog.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
		}
		switch {
		case product == nil:
			issues = append(issues, LineIssue{LineID: line.ID, ProductID: line.ProductID, Reason: IssueProductMissing, RequestedQty: line.Quantity})
			continue
		case !product.Active:
			issues = append(issues, LineIssue{LineID: line.ID, ProductID: line.ProductID, Reason: IssueProductInactive, RequestedQty: line.Quantity})
			continue
		case product.StockQty < line.Quantity:
			issues = append(issues, LineIssue{
				LineID:       line.ID,
				ProductID:    line.ProductID,
				Reason:       IssueInsufficientStock,
				RequestedQty: line.Quantity,
				AvailableQty: product.StockQty,
			})
			continue
		}

		// Quote always uses the live price, refreshing stale snapshots.
		line.UnitPriceCents = product.PriceCents
		lines = append(lines, pricing.Line{UnitPriceCents: product.PriceCents, Quantity: line.Quantity})
	}
	if len(issues) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "some cart lines cannot be fulfilled").
			WithDetails(map[string]any{"lines": issues})
	}

	subtotal := 0
	for _, l := range lines {
		subtotal += l.UnitPriceCents * l.Quantity
	}

	var resolution *coupons.Resolution
	var discount *pricing.Discount
	if cart.AppliedCouponCode != nil {
		resolution, err = s.coupons.Resolve(ctx, *cart.AppliedCouponCode, subtotal, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		discount = &resolution.Discount
	}

	summary, err := s.pricer.Quote(lines, discount, cart.ShippingMethod)
	if err != nil {
		return nil, err
	}

	return &QuoteResult{Cart: cart, Summary: summary, Resolution: resolution}, nil
}

func (s *service) ownedLine(ctx context.Context, buyerID, lineID uuid.UUID) (*models.Cart, *models.CartLine, error) {
	cart, err := s.ensureCart(ctx, buyerID)
	if err != nil {
		return nil, nil, err
	}
	line, err := s.repo.GetLine(ctx, cart.ID, lineID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart line")
	}
	if line == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return cart, line, nil
}

func (s *service) reload(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.GetActive(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading cart")
	}
	if cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart disappeared during update")
	}
	return cart, nil
}
