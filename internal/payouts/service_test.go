package payouts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/vendors"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
	"github.com/mfigueroa/bazario-backend/pkg/outbox"
)

func setupPayoutsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:payouts_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
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
		`CREATE TABLE IF NOT EXISTS payouts (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  period_start DATETIME NOT NULL,
  period_end DATETIME NOT NULL,
  items_count INTEGER NOT NULL DEFAULT 0,
  amount_cents INTEGER NOT NULL DEFAULT 0,
  commission_cents INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  failure_reason TEXT,
  processed_at DATETIME,
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
  payout_id TEXT REFERENCES payouts(id) ON DELETE SET NULL DEFERRABLE INITIALLY DEFERRED,
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

type payoutsTxRunner struct {
	db *gorm.DB
}

func (r payoutsTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubProvider struct {
	err   error
	calls int
}

func (p *stubProvider) Transfer(ctx context.Context, vendor models.Vendor, payout models.Payout) error {
	p.calls++
	return p.err
}

type payoutsFixture struct {
	db       *gorm.DB
	repo     Repository
	svc      Service
	provider *stubProvider
}

func newPayoutsFixture(t *testing.T) *payoutsFixture {
	t.Helper()
	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	provider := &stubProvider{}
	events := outbox.NewService(outbox.NewRepository(db), nil)
	svc, err := NewService(repo, payoutsTxRunner{db: db}, vendors.NewRepository(db), provider, events, nil)
	require.NoError(t, err)
	return &payoutsFixture{db: db, repo: repo, svc: svc, provider: provider}
}

func (f *payoutsFixture) createVendor(t *testing.T, enabled bool, createdAt time.Time) *models.Vendor {
	t.Helper()
	ref := "acct_" + uuid.NewString()[:8]
	vendor := &models.Vendor{
		ID:                uuid.New(),
		Name:              "Test Vendor",
		PayoutsEnabled:    enabled,
		PayoutProviderRef: &ref,
		CreatedAt:         createdAt,
	}
	require.NoError(t, f.db.Create(vendor).Error)
	return vendor
}

func (f *payoutsFixture) createItem(t *testing.T, vendorID uuid.UUID, status enums.OrderItemStatus, subtotal, commission int, createdAt time.Time) *models.OrderItem {
	t.Helper()
	item := &models.OrderItem{
		ID:              uuid.New(),
		OrderID:         uuid.New(),
		VendorID:        vendorID,
		ProductID:       uuid.New(),
		ProductName:     "Linen Throw",
		Quantity:        1,
		UnitPriceCents:  subtotal,
		SubtotalCents:   subtotal,
		CommissionCents: commission,
		Status:          status,
		CreatedAt:       createdAt,
	}
	require.NoError(t, f.db.Create(item).Error)
	return item
}

func TestAggregateCreatesPayoutPerVendor(t *testing.T) {
	f := newPayoutsFixture(t)
	base := time.Now().UTC().Add(-48 * time.Hour)
	vendorA := f.createVendor(t, true, base)
	vendorB := f.createVendor(t, true, base)

	f.createItem(t, vendorA.ID, enums.OrderItemStatusDelivered, 5000, 750, base.Add(time.Hour))
	f.createItem(t, vendorA.ID, enums.OrderItemStatusDelivered, 3000, 450, base.Add(2*time.Hour))
	f.createItem(t, vendorB.ID, enums.OrderItemStatusDelivered, 2000, 200, base.Add(time.Hour))
	// Not yet delivered, must not be claimed.
	f.createItem(t, vendorA.ID, enums.OrderItemStatusShipped, 9000, 1350, base.Add(time.Hour))

	cutoff := time.Now().UTC()
	created, err := f.svc.Aggregate(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, created, 2)

	byVendor := map[uuid.UUID]models.Payout{}
	for _, payout := range created {
		byVendor[payout.VendorID] = payout
	}
	payoutA := byVendor[vendorA.ID]
	assert.Equal(t, 2, payoutA.ItemsCount)
	assert.Equal(t, 8000-1200, payoutA.AmountCents)
	assert.Equal(t, 1200, payoutA.CommissionCents)
	assert.Equal(t, enums.PayoutStatusPending, payoutA.Status)
	assert.True(t, payoutA.PeriodStart.Equal(vendorA.CreatedAt))
	assert.True(t, payoutA.PeriodEnd.Equal(cutoff))

	payoutB := byVendor[vendorB.ID]
	assert.Equal(t, 1800, payoutB.AmountCents)

	var unclaimed int64
	require.NoError(t, f.db.Model(&models.OrderItem{}).Where("payout_id IS NULL").Count(&unclaimed).Error)
	assert.Equal(t, int64(1), unclaimed)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", enums.EventPayoutCreated).Find(&events).Error)
	assert.Len(t, events, 2)
}

func TestAggregateClaimsReferencePersistedPayout(t *testing.T) {
	f := newPayoutsFixture(t)

	// The fixture enforces foreign keys, so the claim UPDATE only commits if
	// the payout row it points at lands in the same transaction.
	var enforced int
	require.NoError(t, f.db.Raw("PRAGMA foreign_keys").Scan(&enforced).Error)
	require.Equal(t, 1, enforced)

	base := time.Now().UTC().Add(-48 * time.Hour)
	vendor := f.createVendor(t, true, base)
	f.createItem(t, vendor.ID, enums.OrderItemStatusDelivered, 5000, 750, base.Add(time.Hour))

	created, err := f.svc.Aggregate(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, created, 1)

	var payout models.Payout
	require.NoError(t, f.db.First(&payout, "id = ?", created[0].ID).Error)

	var claimed []models.OrderItem
	require.NoError(t, f.db.Where("payout_id = ?", payout.ID).Find(&claimed).Error)
	assert.Len(t, claimed, 1)

	// A claim against a payout that was never inserted must be rejected.
	err = f.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.OrderItem{}).
			Where("id = ?", claimed[0].ID).
			Update("payout_id", uuid.New()).Error
	})
	require.Error(t, err)
}

func TestAggregateRerunClaimsNothing(t *testing.T) {
	f := newPayoutsFixture(t)
	base := time.Now().UTC().Add(-48 * time.Hour)
	vendor := f.createVendor(t, true, base)
	f.createItem(t, vendor.ID, enums.OrderItemStatusDelivered, 5000, 750, base.Add(time.Hour))

	cutoff := time.Now().UTC()
	created, err := f.svc.Aggregate(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, created, 1)

	again, err := f.svc.Aggregate(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Empty(t, again)

	var count int64
	require.NoError(t, f.db.Model(&models.Payout{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAggregatePeriodsAreContiguous(t *testing.T) {
	f := newPayoutsFixture(t)
	base := time.Now().UTC().Add(-72 * time.Hour)
	vendor := f.createVendor(t, true, base)

	f.createItem(t, vendor.ID, enums.OrderItemStatusDelivered, 5000, 750, base.Add(time.Hour))
	firstCutoff := base.Add(24 * time.Hour)
	first, err := f.svc.Aggregate(context.Background(), firstCutoff)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Delivered inside the second period.
	f.createItem(t, vendor.ID, enums.OrderItemStatusDelivered, 3000, 450, base.Add(30*time.Hour))
	secondCutoff := base.Add(48 * time.Hour)
	second, err := f.svc.Aggregate(context.Background(), secondCutoff)
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.True(t, second[0].PeriodStart.Equal(first[0].PeriodEnd))
	assert.Equal(t, 1, second[0].ItemsCount)
	assert.Equal(t, 2550, second[0].AmountCents)
}

func TestExecuteCompletesPayout(t *testing.T) {
	f := newPayoutsFixture(t)
	base := time.Now().UTC().Add(-48 * time.Hour)
	vendor := f.createVendor(t, true, base)
	f.createItem(t, vendor.ID, enums.OrderItemStatusDelivered, 5000, 750, base.Add(time.Hour))

	created, err := f.svc.Aggregate(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, created, 1)

	payout, err := f.svc.Execute(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusCompleted, payout.Status)
	assert.NotNil(t, payout.ProcessedAt)
	assert.Equal(t, 1, f.provider.calls)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", enums.EventPayoutCompleted).Find(&events).Error)
	assert.Len(t, events, 1)
}

func TestExecuteBlockedUntilOnboarding(t *testing.T) {
	f := newPayoutsFixture(t)
	base := time.Now().UTC().Add(-48 * time.Hour)
	vendor := f.createVendor(t, false, base)
	f.createItem(t, vendor.ID, enums.OrderItemStatusDelivered, 5000, 750, base.Add(time.Hour))

	// Aggregation is unaffected by the gate.
	created, err := f.svc.Aggregate(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, created, 1)

	_, err = f.svc.Execute(context.Background(), created[0].ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	assert.Zero(t, f.provider.calls)

	var reloaded models.Payout
	require.NoError(t, f.db.First(&reloaded, "id = ?", created[0].ID).Error)
	assert.Equal(t, enums.PayoutStatusPending, reloaded.Status)
}

func TestExecuteFailureIsRetryable(t *testing.T) {
	f := newPayoutsFixture(t)
	base := time.Now().UTC().Add(-48 * time.Hour)
	vendor := f.createVendor(t, true, base)
	f.createItem(t, vendor.ID, enums.OrderItemStatusDelivered, 5000, 750, base.Add(time.Hour))

	created, err := f.svc.Aggregate(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, created, 1)

	f.provider.err = errors.New("provider timeout")
	_, err = f.svc.Execute(context.Background(), created[0].ID)
	require.Error(t, err)

	var failed models.Payout
	require.NoError(t, f.db.First(&failed, "id = ?", created[0].ID).Error)
	assert.Equal(t, enums.PayoutStatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "provider timeout", *failed.FailureReason)

	var failedEvents []models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", enums.EventPayoutFailed).Find(&failedEvents).Error)
	assert.Len(t, failedEvents, 1)

	// Retry re-executes the same period without touching aggregation.
	f.provider.err = nil
	retried, err := f.svc.Execute(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusCompleted, retried.Status)
	assert.True(t, retried.PeriodEnd.Equal(created[0].PeriodEnd))
}

func TestExecuteRejectsCompletedPayout(t *testing.T) {
	f := newPayoutsFixture(t)
	base := time.Now().UTC().Add(-48 * time.Hour)
	vendor := f.createVendor(t, true, base)
	f.createItem(t, vendor.ID, enums.OrderItemStatusDelivered, 5000, 750, base.Add(time.Hour))

	created, err := f.svc.Aggregate(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	_, err = f.svc.Execute(context.Background(), created[0].ID)
	require.NoError(t, err)

	_, err = f.svc.Execute(context.Background(), created[0].ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestSummaryAggregatesByStatus(t *testing.T) {
	f := newPayoutsFixture(t)
	base := time.Now().UTC().Add(-48 * time.Hour)
	vendor := f.createVendor(t, true, base)
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonth := monthStart.Add(-time.Hour)

	rows := []models.Payout{
		{ID: uuid.New(), VendorID: vendor.ID, PeriodStart: base, PeriodEnd: now, AmountCents: 1000, Status: enums.PayoutStatusPending},
		{ID: uuid.New(), VendorID: vendor.ID, PeriodStart: base, PeriodEnd: now, AmountCents: 2000, Status: enums.PayoutStatusProcessing},
		{ID: uuid.New(), VendorID: vendor.ID, PeriodStart: base, PeriodEnd: now, AmountCents: 4000, Status: enums.PayoutStatusCompleted, ProcessedAt: &now},
		{ID: uuid.New(), VendorID: vendor.ID, PeriodStart: base, PeriodEnd: now, AmountCents: 8000, Status: enums.PayoutStatusCompleted, ProcessedAt: &lastMonth},
	}
	for i := range rows {
		require.NoError(t, f.db.Create(&rows[i]).Error)
	}

	summary, err := f.svc.Summary(context.Background(), vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), summary.PendingAmountCents)
	assert.Equal(t, int64(2000), summary.ProcessingAmountCents)
	assert.Equal(t, int64(4000), summary.PaidThisMonthCents)
	assert.Equal(t, int64(12000), summary.TotalPaidCents)
}

func TestExecuteDueSkipsGatedVendors(t *testing.T) {
	f := newPayoutsFixture(t)
	base := time.Now().UTC().Add(-48 * time.Hour)
	ready := f.createVendor(t, true, base)
	gated := f.createVendor(t, false, base)
	f.createItem(t, ready.ID, enums.OrderItemStatusDelivered, 5000, 750, base.Add(time.Hour))
	f.createItem(t, gated.ID, enums.OrderItemStatusDelivered, 3000, 450, base.Add(time.Hour))

	_, err := f.svc.Aggregate(context.Background(), time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, f.svc.ExecuteDue(context.Background()))

	var completed, pending int64
	require.NoError(t, f.db.Model(&models.Payout{}).Where("status = ?", enums.PayoutStatusCompleted).Count(&completed).Error)
	require.NoError(t, f.db.Model(&models.Payout{}).Where("status = ?", enums.PayoutStatusPending).Count(&pending).Error)
	assert.Equal(t, int64(1), completed)
	assert.Equal(t, int64(1), pending)
}
