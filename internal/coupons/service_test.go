package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
)

func setupCouponsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS coupons (
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
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func createCoupon(t *testing.T, db *gorm.DB, mutate func(*models.Coupon)) *models.Coupon {
	t.Helper()

	now := time.Now().UTC()
	percent := 15
	coupon := &models.Coupon{
		ID:           uuid.New(),
		Code:         "summer15",
		DiscountType: enums.DiscountTypePercentage,
		PercentOff:   &percent,
		StartsAt:     now.Add(-time.Hour),
		ExpiresAt:    now.Add(24 * time.Hour),
	}
	if mutate != nil {
		mutate(coupon)
	}
	require.NoError(t, db.Create(coupon).Error)
	return coupon
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc
}

func rejectionReason(t *testing.T, err error) string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	reason, _ := details["reason"].(string)
	return reason
}

func TestResolvePercentageCoupon(t *testing.T) {
	db := setupCouponsTestDB(t)
	svc := newTestService(t, db)
	maxDiscount := 2000
	createCoupon(t, db, func(c *models.Coupon) {
		c.MaxDiscountCents = &maxDiscount
	})

	res, err := svc.Resolve(context.Background(), "summer15", 12000, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, enums.DiscountTypePercentage, res.Discount.Type)
	assert.Equal(t, 15, res.Discount.PercentOff)
	assert.Equal(t, 2000, res.Discount.MaxDiscountCents)
	assert.Equal(t, "summer15", res.Coupon.Code)
}

func TestResolveFoldsCase(t *testing.T) {
	db := setupCouponsTestDB(t)
	svc := newTestService(t, db)
	createCoupon(t, db, nil)

	res, err := svc.Resolve(context.Background(), "  SUMMER15 ", 5000, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "summer15", res.Coupon.Code)
}

func TestResolveNotFound(t *testing.T) {
	db := setupCouponsTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Resolve(context.Background(), "nope", 5000, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
	assert.Equal(t, ReasonNotFound, rejectionReason(t, err))
}

func TestResolveNotStarted(t *testing.T) {
	db := setupCouponsTestDB(t)
	svc := newTestService(t, db)
	createCoupon(t, db, func(c *models.Coupon) {
		c.StartsAt = time.Now().UTC().Add(time.Hour)
		c.ExpiresAt = time.Now().UTC().Add(48 * time.Hour)
	})

	_, err := svc.Resolve(context.Background(), "summer15", 5000, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, ReasonNotStarted, rejectionReason(t, err))
}

func TestResolveExpired(t *testing.T) {
	db := setupCouponsTestDB(t)
	svc := newTestService(t, db)
	createCoupon(t, db, func(c *models.Coupon) {
		c.StartsAt = time.Now().UTC().Add(-48 * time.Hour)
		c.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	})

	_, err := svc.Resolve(context.Background(), "summer15", 5000, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, ReasonExpired, rejectionReason(t, err))
}

func TestResolveUsageExhausted(t *testing.T) {
	db := setupCouponsTestDB(t)
	svc := newTestService(t, db)
	max := 3
	createCoupon(t, db, func(c *models.Coupon) {
		c.MaxRedemptions = &max
		c.RedemptionCount = 3
	})

	_, err := svc.Resolve(context.Background(), "summer15", 5000, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	assert.Equal(t, ReasonUsageExhausted, rejectionReason(t, err))
}

func TestResolveBelowMinimum(t *testing.T) {
	db := setupCouponsTestDB(t)
	svc := newTestService(t, db)
	min := 10000
	createCoupon(t, db, func(c *models.Coupon) {
		c.MinSubtotalCents = &min
	})

	_, err := svc.Resolve(context.Background(), "summer15", 9999, time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, ReasonBelowMinimum, rejectionReason(t, err))
}

func TestRedeemTxIncrementsCount(t *testing.T) {
	db := setupCouponsTestDB(t)
	svc := newTestService(t, db)
	max := 2
	coupon := createCoupon(t, db, func(c *models.Coupon) {
		c.MaxRedemptions = &max
	})

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.RedeemTx(tx, coupon)
	}))

	var reloaded models.Coupon
	require.NoError(t, db.First(&reloaded, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, reloaded.RedemptionCount)
}

func TestRedeemTxGuardLosesAtCeiling(t *testing.T) {
	db := setupCouponsTestDB(t)
	svc := newTestService(t, db)
	max := 1
	coupon := createCoupon(t, db, func(c *models.Coupon) {
		c.MaxRedemptions = &max
		c.RedemptionCount = 1
	})

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.RedeemTx(tx, coupon)
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	assert.Equal(t, ReasonUsageExhausted, rejectionReason(t, err))
}
