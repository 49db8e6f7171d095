package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/cart"
	"github.com/mfigueroa/bazario-backend/internal/coupons"
	"github.com/mfigueroa/bazario-backend/internal/pricing"
	"github.com/mfigueroa/bazario-backend/internal/products"
	"github.com/mfigueroa/bazario-backend/internal/vendors"
	"github.com/mfigueroa/bazario-backend/pkg/config"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
	"github.com/mfigueroa/bazario-backend/pkg/outbox"
	"github.com/mfigueroa/bazario-backend/pkg/types"
)

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS vendors (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  commission_rate TEXT NOT NULL,
  payouts_enabled INTEGER NOT NULL DEFAULT 0,
  payout_provider_ref TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  name TEXT NOT NULL,
  variant_name TEXT,
  price_cents INTEGER NOT NULL,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  applied_coupon_code TEXT,
  shipping_method TEXT NOT NULL DEFAULT 'standard',
  converted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_lines (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  vendor_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS coupons (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  discount_type TEXT NOT NULL,
  percent_off INTEGER,
  amount_off_cents INTEGER,
  max_discount_cents INTEGER,
  min_subtotal_cents INTEGER,
  starts_at DATETIME NOT NULL,
  expires_at DATETIME NOT NULL,
  max_redemptions INTEGER,
  redemption_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS payment_confirmations (
  reference TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  consumed_at DATETIME,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  buyer_id TEXT NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  payment_ref TEXT NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  coupon_code TEXT,
  shipping_address TEXT,
  billing_address TEXT,
  vendor_ids TEXT,
  paid_at DATETIME,
  shipped_at DATETIME,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  product_name TEXT NOT NULL,
  variant_name TEXT,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  commission_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payout_id TEXT,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type checkoutFixture struct {
	db      *gorm.DB
	svc     Service
	cartSvc cart.Service
	buyerID uuid.UUID
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	db := setupCheckoutTestDB(t)

	couponSvc, err := coupons.NewService(coupons.NewRepository(db))
	require.NoError(t, err)

	pricer := pricing.NewEngine(config.PricingConfig{
		TaxRateBPS:                 800,
		FreeShippingThresholdCents: 10000,
		StandardShippingCents:      599,
		ExpressShippingCents:       1499,
	})

	catalog := products.NewRepository(db)
	cartRepo := cart.NewRepository(db)

	cartSvc, err := cart.NewService(cartRepo, catalog, couponSvc, pricer)
	require.NoError(t, err)

	events := outbox.NewService(outbox.NewRepository(db), nil)

	svc, err := NewService(
		gormTxRunner{db: db},
		NewRepository(),
		cartRepo,
		catalog,
		vendors.NewRepository(db),
		couponSvc,
		pricer,
		events,
		nil,
	)
	require.NoError(t, err)

	return &checkoutFixture{db: db, svc: svc, cartSvc: cartSvc, buyerID: uuid.New()}
}

func (f *checkoutFixture) createVendor(t *testing.T, rate string) *models.Vendor {
	t.Helper()
	parsed, err := decimal.NewFromString(rate)
	require.NoError(t, err)
	vendor := &models.Vendor{
		ID:             uuid.New(),
		Name:           "Vendor " + rate,
		CommissionRate: parsed,
	}
	require.NoError(t, f.db.Create(vendor).Error)
	return vendor
}

func (f *checkoutFixture) createProduct(t *testing.T, vendorID uuid.UUID, priceCents, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		VendorID:   vendorID,
		Name:       "Walnut Desk Organizer",
		PriceCents: priceCents,
		StockQty:   stock,
		Active:     true,
	}
	require.NoError(t, f.db.Create(product).Error)
	return product
}

func (f *checkoutFixture) createConfirmation(t *testing.T, ref string, buyerID uuid.UUID, amountCents int) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.PaymentConfirmation{
		Reference:   ref,
		BuyerID:     buyerID,
		AmountCents: amountCents,
	}).Error)
}

func testAddress() types.Address {
	return types.Address{
		Name:       "Jordan Reyes",
		Line1:      "44 Cannery Row",
		City:       "Monterey",
		State:      "CA",
		PostalCode: "93940",
		Country:    "US",
	}
}

func checkoutInput(ref string) Input {
	return Input{
		PaymentRef:      ref,
		ShippingAddress: testAddress(),
		BillingAddress:  testAddress(),
	}
}

func TestExecuteSplitsCartAcrossVendors(t *testing.T) {
	f := newCheckoutFixture(t)
	vendorA := f.createVendor(t, "0.15")
	vendorB := f.createVendor(t, "0.10")
	productA := f.createProduct(t, vendorA.ID, 5000, 5)
	productB := f.createProduct(t, vendorB.ID, 2500, 5)

	ctx := context.Background()
	_, err := f.cartSvc.AddLine(ctx, f.buyerID, cart.AddLineInput{ProductID: productA.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = f.cartSvc.AddLine(ctx, f.buyerID, cart.AddLineInput{ProductID: productB.ID, Quantity: 2})
	require.NoError(t, err)

	// subtotal 10000, free shipping, 8% tax -> 10800
	f.createConfirmation(t, "pay_123", f.buyerID, 10800)

	order, err := f.svc.Execute(ctx, f.buyerID, checkoutInput("pay_123"))
	require.NoError(t, err)

	assert.Equal(t, 10000, order.SubtotalCents)
	assert.Equal(t, 0, order.DiscountCents)
	assert.Equal(t, 800, order.TaxCents)
	assert.Equal(t, 0, order.ShippingCents)
	assert.Equal(t, 10800, order.TotalCents)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
	assert.NotNil(t, order.PaidAt)
	assert.Contains(t, order.OrderNumber, "BZ-")
	assert.Len(t, order.VendorIDs, 2)

	require.Len(t, order.Items, 2)
	byVendor := map[uuid.UUID]models.OrderItem{}
	for _, item := range order.Items {
		byVendor[item.VendorID] = item
	}
	assert.Equal(t, 750, byVendor[vendorA.ID].CommissionCents) // 15% of 5000
	assert.Equal(t, 500, byVendor[vendorB.ID].CommissionCents) // 10% of 5000
	assert.Equal(t, enums.OrderItemStatusPending, byVendor[vendorA.ID].Status)

	// Stock reserved.
	var reloadedA, reloadedB models.Product
	require.NoError(t, f.db.First(&reloadedA, "id = ?", productA.ID).Error)
	require.NoError(t, f.db.First(&reloadedB, "id = ?", productB.ID).Error)
	assert.Equal(t, 4, reloadedA.StockQty)
	assert.Equal(t, 3, reloadedB.StockQty)

	// Payment consumed.
	var confirmation models.PaymentConfirmation
	require.NoError(t, f.db.First(&confirmation, "reference = ?", "pay_123").Error)
	assert.NotNil(t, confirmation.ConsumedAt)

	// Cart converted.
	var convertedCart models.Cart
	require.NoError(t, f.db.First(&convertedCart, "buyer_id = ?", f.buyerID).Error)
	assert.Equal(t, enums.CartStatusConverted, convertedCart.Status)

	// One order.created event per vendor.
	var events []models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", enums.EventOrderCreated).Find(&events).Error)
	assert.Len(t, events, 2)
}

func TestExecuteRedeemsCoupon(t *testing.T) {
	f := newCheckoutFixture(t)
	vendor := f.createVendor(t, "0.15")
	productA := f.createProduct(t, vendor.ID, 5000, 5)
	productB := f.createProduct(t, vendor.ID, 1000, 5)

	percent := 15
	max := 1
	coupon := &models.Coupon{
		ID:             uuid.New(),
		Code:           "summer15",
		DiscountType:   enums.DiscountTypePercentage,
		PercentOff:     &percent,
		StartsAt:       time.Now().UTC().Add(-time.Hour),
		ExpiresAt:      time.Now().UTC().Add(time.Hour),
		MaxRedemptions: &max,
	}
	require.NoError(t, f.db.Create(coupon).Error)

	ctx := context.Background()
	_, err := f.cartSvc.AddLine(ctx, f.buyerID, cart.AddLineInput{ProductID: productA.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.cartSvc.AddLine(ctx, f.buyerID, cart.AddLineInput{ProductID: productB.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.cartSvc.ApplyCoupon(ctx, f.buyerID, "summer15")
	require.NoError(t, err)

	// subtotal 12000 - 1800 discount, tax 816, free shipping -> 11016
	f.createConfirmation(t, "pay_coupon", f.buyerID, 11016)

	order, err := f.svc.Execute(ctx, f.buyerID, checkoutInput("pay_coupon"))
	require.NoError(t, err)

	assert.Equal(t, 1800, order.DiscountCents)
	assert.Equal(t, 11016, order.TotalCents)
	require.NotNil(t, order.CouponCode)
	assert.Equal(t, "summer15", *order.CouponCode)

	var reloaded models.Coupon
	require.NoError(t, f.db.First(&reloaded, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, reloaded.RedemptionCount)
}

func TestExecuteAmountMismatchConsumesNothing(t *testing.T) {
	f := newCheckoutFixture(t)
	vendor := f.createVendor(t, "0.15")
	product := f.createProduct(t, vendor.ID, 5000, 5)

	ctx := context.Background()
	_, err := f.cartSvc.AddLine(ctx, f.buyerID, cart.AddLineInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	f.createConfirmation(t, "pay_wrong", f.buyerID, 9999)

	_, err = f.svc.Execute(ctx, f.buyerID, checkoutInput("pay_wrong"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details := typed.Details().(map[string]any)
	assert.Equal(t, PaymentReasonAmountMismatch, details["reason"])

	var confirmation models.PaymentConfirmation
	require.NoError(t, f.db.First(&confirmation, "reference = ?", "pay_wrong").Error)
	assert.Nil(t, confirmation.ConsumedAt)

	var reloaded models.Product
	require.NoError(t, f.db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 5, reloaded.StockQty)

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
}

func TestExecuteForeignPaymentRejected(t *testing.T) {
	f := newCheckoutFixture(t)
	vendor := f.createVendor(t, "0.15")
	product := f.createProduct(t, vendor.ID, 5000, 5)

	ctx := context.Background()
	_, err := f.cartSvc.AddLine(ctx, f.buyerID, cart.AddLineInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	f.createConfirmation(t, "pay_other", uuid.New(), 5999)

	_, err = f.svc.Execute(ctx, f.buyerID, checkoutInput("pay_other"))
	require.Error(t, err)
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, PaymentReasonForeign, details["reason"])
}

func TestExecuteConsumedPaymentRejected(t *testing.T) {
	f := newCheckoutFixture(t)
	vendor := f.createVendor(t, "0.15")
	product := f.createProduct(t, vendor.ID, 5000, 5)

	ctx := context.Background()
	_, err := f.cartSvc.AddLine(ctx, f.buyerID, cart.AddLineInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)

	consumed := time.Now().UTC()
	require.NoError(t, f.db.Create(&models.PaymentConfirmation{
		Reference:   "pay_used",
		BuyerID:     f.buyerID,
		AmountCents: 5999,
		ConsumedAt:  &consumed,
	}).Error)

	_, err = f.svc.Execute(ctx, f.buyerID, checkoutInput("pay_used"))
	require.Error(t, err)
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, PaymentReasonAlreadyConsumed, details["reason"])
}

func TestExecuteStockConflictRollsBack(t *testing.T) {
	f := newCheckoutFixture(t)
	vendor := f.createVendor(t, "0.15")
	product := f.createProduct(t, vendor.ID, 5000, 2)

	ctx := context.Background()
	_, err := f.cartSvc.AddLine(ctx, f.buyerID, cart.AddLineInput{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	// Stock drops after the cart was filled.
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", product.ID).Update("stock_qty", 1).Error)

	// 2x5000 = 10000 subtotal, free shipping, tax 800 -> 10800
	f.createConfirmation(t, "pay_stock", f.buyerID, 10800)

	_, err = f.svc.Execute(ctx, f.buyerID, checkoutInput("pay_stock"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())

	// Nothing consumed, cart still active.
	var confirmation models.PaymentConfirmation
	require.NoError(t, f.db.First(&confirmation, "reference = ?", "pay_stock").Error)
	assert.Nil(t, confirmation.ConsumedAt)

	var activeCart models.Cart
	require.NoError(t, f.db.First(&activeCart, "buyer_id = ?", f.buyerID).Error)
	assert.Equal(t, enums.CartStatusActive, activeCart.Status)
}

func TestExecuteEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Execute(context.Background(), f.buyerID, checkoutInput("pay_none"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
