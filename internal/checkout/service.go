package checkout

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/cart"
	"github.com/mfigueroa/bazario-backend/internal/coupons"
	"github.com/mfigueroa/bazario-backend/internal/pricing"
	"github.com/mfigueroa/bazario-backend/internal/products"
	"github.com/mfigueroa/bazario-backend/internal/vendors"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
	"github.com/mfigueroa/bazario-backend/pkg/outbox"
	"github.com/mfigueroa/bazario-backend/pkg/outbox/payloads"
	"github.com/mfigueroa/bazario-backend/pkg/types"
)

// Payment rejection reasons surfaced in error details.
const (
	PaymentReasonNotFound        = "payment_not_found"
	PaymentReasonForeign         = "payment_foreign"
	PaymentReasonAlreadyConsumed = "payment_already_consumed"
	PaymentReasonAmountMismatch  = "payment_amount_mismatch"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Input is the buyer-supplied checkout payload. Pricing never comes from the
// client; the quote is recomputed inside the transaction.
type Input struct {
	PaymentRef      string
	ShippingAddress types.Address
	BillingAddress  types.Address
}

// Service turns an active cart into a frozen order. The whole split is one
// transaction: payment consumption, stock reservation, order creation, coupon
// redemption and cart conversion commit or roll back together.
type Service interface {
	Execute(ctx context.Context, buyerID uuid.UUID, input Input) (*models.Order, error)
}

type service struct {
	tx       txRunner
	repo     Repository
	carts    cart.Repository
	catalog  products.Repository
	vendors  vendors.Repository
	coupons  coupons.Service
	pricer   pricing.Engine
	events   eventEmitter
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	repo Repository,
	carts cart.Repository,
	catalog products.Repository,
	vendorRepo vendors.Repository,
	couponSvc coupons.Service,
	pricer pricing.Engine,
	events eventEmitter,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if vendorRepo == nil {
		return nil, fmt.Errorf("vendor repository required")
	}
	if couponSvc == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	return &service{
		tx:      tx,
		repo:    repo,
		carts:   carts,
		catalog: catalog,
		vendors: vendorRepo,
		coupons: couponSvc,
		pricer:  pricer,
		events:  events,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Execute(ctx context.Context, buyerID uuid.UUID, input Input) (*models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if strings.TrimSpace(input.PaymentRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	if err := input.BillingAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing address")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.executeTx(ctx, tx, buyerID, input)
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
			"total_cents":  order.TotalCents,
			"vendor_count": len(order.VendorIDs),
		})
		s.logg.Info(logCtx, "checkout completed")
	}
	return order, nil
}

func (s *service) executeTx(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, input Input) (*models.Order, error) {
	activeCart, err := s.carts.GetActiveTx(tx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}
	if activeCart == nil || len(activeCart.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	// Re-quote against live catalog state; client-side totals are untrusted.
	priced, issues, err := s.priceLines(tx, activeCart)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, stockConflict(issues)
	}

	subtotal := 0
	for _, line := range priced {
		subtotal += line.UnitPriceCents * line.Quantity
	}

	var resolution *coupons.Resolution
	var discount *pricing.Discount
	if activeCart.AppliedCouponCode != nil {
		resolution, err = s.coupons.Resolve(ctx, *activeCart.AppliedCouponCode, subtotal, s.now())
		if err != nil {
			return nil, err
		}
		discount = &resolution.Discount
	}

	pricingLines := make([]pricing.Line, len(priced))
	for i, line := range priced {
		pricingLines[i] = pricing.Line{UnitPriceCents: line.UnitPriceCents, Quantity: line.Quantity}
	}
	summary, err := s.pricer.Quote(pricingLines, discount, activeCart.ShippingMethod)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.consumePayment(tx, buyerID, input.PaymentRef, summary.TotalCents, now); err != nil {
		return nil, err
	}

	// Reserve stock only after payment validation so a mismatch never
	// mutates catalog state; within the tx the order is irrelevant anyway.
	reserveIssues := []cart.LineIssue{}
	for _, line := range priced {
		ok, err := s.catalog.ReserveStockTx(tx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserving stock")
		}
		if !ok {
			reserveIssues = append(reserveIssues, cart.LineIssue{
				LineID:       line.LineID,
				ProductID:    line.ProductID,
				Reason:       cart.IssueInsufficientStock,
				RequestedQty: line.Quantity,
				AvailableQty: line.StockQty,
			})
		}
	}
	if len(reserveIssues) > 0 {
		return nil, stockConflict(reserveIssues)
	}

	items, vendorIDs, err := s.buildItems(ctx, priced)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     newOrderNumber(now),
		BuyerID:         buyerID,
		PaymentStatus:   enums.PaymentStatusPaid,
		PaymentRef:      input.PaymentRef,
		SubtotalCents:   summary.SubtotalCents,
		DiscountCents:   summary.DiscountCents,
		TaxCents:        summary.TaxCents,
		ShippingCents:   summary.ShippingCents,
		TotalCents:      summary.TotalCents,
		CouponCode:      activeCart.AppliedCouponCode,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		VendorIDs:       vendorIDs,
		Items:           items,
		PaidAt:          &now,
	}
	if err := s.repo.CreateOrderTx(tx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
	}

	if resolution != nil {
		if err := s.coupons.RedeemTx(tx, resolution.Coupon); err != nil {
			return nil, err
		}
	}

	converted, err := s.carts.MarkConvertedTx(tx, activeCart.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "converting cart")
	}
	if !converted {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart was already checked out")
	}

	if err := s.emitOrderCreated(ctx, tx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// pricedLine is a cart line revalidated against the live catalog row.
type pricedLine struct {
	LineID         uuid.UUID
	ProductID      uuid.UUID
	VariantID      *uuid.UUID
	VendorID       uuid.UUID
	ProductName    string
	VariantName    *string
	Quantity       int
	UnitPriceCents int
	StockQty       int
}

func (s *service) priceLines(tx *gorm.DB, activeCart *models.Cart) ([]pricedLine, []cart.LineIssue, error) {
	priced := make([]pricedLine, 0, len(activeCart.Lines))
	issues := []cart.LineIssue{}
	for _, line := range activeCart.Lines {
		product, err := s.catalog.GetByIDTx(tx, line.ProductID)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
		}
		switch {
		case product == nil:
			issues = append(issues, cart.LineIssue{LineID: line.ID, ProductID: line.ProductID, Reason: cart.IssueProductMissing, RequestedQty: line.Quantity})
		case !product.Active:
			issues = append(issues, cart.LineIssue{LineID: line.ID, ProductID: line.ProductID, Reason: cart.IssueProductInactive, RequestedQty: line.Quantity})
		case product.StockQty < line.Quantity:
			issues = append(issues, cart.LineIssue{
				LineID:       line.ID,
				ProductID:    line.ProductID,
				Reason:       cart.IssueInsufficientStock,
				RequestedQty: line.Quantity,
				AvailableQty: product.StockQty,
			})
		default:
			priced = append(priced, pricedLine{
				LineID:         line.ID,
				ProductID:      product.ID,
				VariantID:      line.VariantID,
				VendorID:       product.VendorID,
				ProductName:    product.Name,
				VariantName:    product.VariantName,
				Quantity:       line.Quantity,
				UnitPriceCents: product.PriceCents,
				StockQty:       product.StockQty,
			})
		}
	}
	return priced, issues, nil
}

func (s *service) consumePayment(tx *gorm.DB, buyerID uuid.UUID, reference string, totalCents int, now time.Time) error {
	confirmation, err := s.repo.GetPaymentConfirmationTx(tx, reference)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment confirmation")
	}
	if confirmation == nil {
		return paymentConflict("payment confirmation not found", PaymentReasonNotFound, nil)
	}
	if confirmation.BuyerID != buyerID {
		return paymentConflict("payment confirmation belongs to another buyer", PaymentReasonForeign, nil)
	}
	if confirmation.ConsumedAt != nil {
		return paymentConflict("payment confirmation already consumed", PaymentReasonAlreadyConsumed, nil)
	}
	if confirmation.AmountCents != totalCents {
		return paymentConflict("payment amount does not match quoted total", PaymentReasonAmountMismatch, map[string]any{
			"confirmedCents": confirmation.AmountCents,
			"quotedCents":    totalCents,
		})
	}

	consumed, err := s.repo.ConsumePaymentConfirmationTx(tx, reference, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consuming payment confirmation")
	}
	if !consumed {
		return paymentConflict("payment confirmation already consumed", PaymentReasonAlreadyConsumed, nil)
	}
	return nil
}

// buildItems freezes one order item per cart line, stamping the commission
// from each vendor's rate as of now.
func (s *service) buildItems(ctx context.Context, priced []pricedLine) ([]models.OrderItem, pq.StringArray, error) {
	vendorIDSet := map[uuid.UUID]struct{}{}
	for _, line := range priced {
		vendorIDSet[line.VendorID] = struct{}{}
	}
	vendorIDs := make([]uuid.UUID, 0, len(vendorIDSet))
	for id := range vendorIDSet {
		vendorIDs = append(vendorIDs, id)
	}

	vendorsByID, err := s.vendors.ListByIDs(ctx, vendorIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading vendors")
	}

	items := make([]models.OrderItem, 0, len(priced))
	for _, line := range priced {
		vendor, ok := vendorsByID[line.VendorID]
		if !ok {
			return nil, nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("vendor %s missing for product %s", line.VendorID, line.ProductID))
		}
		itemSubtotal := line.UnitPriceCents * line.Quantity
		items = append(items, models.OrderItem{
			ID:              uuid.New(),
			VendorID:        line.VendorID,
			ProductID:       line.ProductID,
			VariantID:       line.VariantID,
			ProductName:     line.ProductName,
			VariantName:     line.VariantName,
			Quantity:        line.Quantity,
			UnitPriceCents:  line.UnitPriceCents,
			SubtotalCents:   itemSubtotal,
			CommissionCents: commissionCents(vendor.CommissionRate, itemSubtotal),
			Status:          enums.OrderItemStatusPending,
		})
	}

	ids := make([]string, len(vendorIDs))
	for i, id := range vendorIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	return items, pq.StringArray(ids), nil
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	type vendorSlice struct {
		itemCount     int
		subtotalCents int64
	}
	perVendor := map[uuid.UUID]*vendorSlice{}
	for _, item := range order.Items {
		slice, ok := perVendor[item.VendorID]
		if !ok {
			slice = &vendorSlice{}
			perVendor[item.VendorID] = slice
		}
		slice.itemCount++
		slice.subtotalCents += int64(item.SubtotalCents)
	}

	for vendorID, slice := range perVendor {
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.BuyerID, Role: enums.ActorRoleBuyer},
			Version:       1,
			Data: payloads.OrderCreatedEvent{
				OrderID:             order.ID,
				OrderNumber:         order.OrderNumber,
				BuyerID:             order.BuyerID,
				VendorID:            vendorID,
				ItemCount:           slice.itemCount,
				VendorSubtotalCents: slice.subtotalCents,
				OrderTotalCents:     int64(order.TotalCents),
				PaymentRef:          order.PaymentRef,
			},
		}
		if err := s.events.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting order created event")
		}
	}
	return nil
}

// commissionCents rounds half up to whole cents.
func commissionCents(rate decimal.Decimal, subtotalCents int) int {
	return int(decimal.NewFromInt(int64(subtotalCents)).Mul(rate).Round(0).IntPart())
}

func stockConflict(issues []cart.LineIssue) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "stock changed").
		WithDetails(map[string]any{"lines": issues})
}

func paymentConflict(message, reason string, extra map[string]any) error {
	details := map[string]any{"reason": reason}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeConflict, message).WithDetails(details)
}

// newOrderNumber mints a human-shareable order number. Uniqueness is
// enforced by the index on orders.order_number.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("BZ-%s-%s", now.Format("20060102"), suffix)
}
