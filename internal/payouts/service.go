package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/vendors"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
	"github.com/mfigueroa/bazario-backend/pkg/outbox"
	"github.com/mfigueroa/bazario-backend/pkg/outbox/payloads"
	"github.com/mfigueroa/bazario-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// TransferProvider executes the actual money movement for a payout. The real
// provider lives outside this system; the contract stays thin on purpose.
type TransferProvider interface {
	Transfer(ctx context.Context, vendor models.Vendor, payout models.Payout) error
}

// VendorSummary is the earnings rollup shown on the vendor dashboard.
type VendorSummary struct {
	PendingAmountCents    int64 `json:"pending_amount_cents"`
	ProcessingAmountCents int64 `json:"processing_amount_cents"`
	PaidThisMonthCents    int64 `json:"paid_this_month_cents"`
	TotalPaidCents        int64 `json:"total_paid_cents"`
}

// Service aggregates delivered order items into per-vendor payouts and
// drives each payout through its settlement lifecycle. Aggregation and
// execution are separate steps: a failed transfer retries the same period,
// it never re-aggregates.
type Service interface {
	Aggregate(ctx context.Context, cutoff time.Time) ([]models.Payout, error)
	Execute(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	ExecuteDue(ctx context.Context) error
	Summary(ctx context.Context, vendorID uuid.UUID) (*VendorSummary, error)
	ListVendorPayouts(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Payout, string, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	vendors  vendors.Repository
	provider TransferProvider
	events   eventEmitter
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the payout ledger service.
func NewService(repo Repository, tx txRunner, vendorRepo vendors.Repository, provider TransferProvider, events eventEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if vendorRepo == nil {
		return nil, fmt.Errorf("vendor repository required")
	}
	if provider == nil {
		return nil, fmt.Errorf("transfer provider required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		vendors:  vendorRepo,
		provider: provider,
		events:   events,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Aggregate closes one settlement period per vendor with unclaimed delivered
// items. Each vendor runs in its own transaction so one failure does not
// roll back the others; errors are combined and returned after the sweep.
func (s *service) Aggregate(ctx context.Context, cutoff time.Time) ([]models.Payout, error) {
	if cutoff.IsZero() {
		cutoff = s.now()
	}

	var vendorIDs []uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ids, err := s.repo.VendorIDsWithUnclaimedDeliveriesTx(tx, cutoff)
		if err != nil {
			return err
		}
		vendorIDs = ids
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing vendors with deliveries")
	}

	var created []models.Payout
	var errs error
	for _, vendorID := range vendorIDs {
		payout, err := s.aggregateVendor(ctx, vendorID, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("vendor %s: %w", vendorID, err))
			continue
		}
		if payout != nil {
			created = append(created, *payout)
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"cutoff":          cutoff,
			"payouts_created": len(created),
		})
		s.logg.Info(logCtx, "payout aggregation finished")
	}
	return created, errs
}

func (s *service) aggregateVendor(ctx context.Context, vendorID uuid.UUID, cutoff time.Time) (*models.Payout, error) {
	var created *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		vendor, err := s.vendors.GetByID(ctx, vendorID)
		if err != nil {
			return err
		}
		if vendor == nil {
			return fmt.Errorf("vendor not found")
		}

		periodStart := vendor.CreatedAt
		if last, err := s.repo.LastPeriodEndTx(tx, vendorID); err != nil {
			return err
		} else if last != nil {
			periodStart = *last
		}
		if !cutoff.After(periodStart) {
			return nil
		}

		payout := &models.Payout{
			ID:          uuid.New(),
			VendorID:    vendorID,
			PeriodStart: periodStart,
			PeriodEnd:   cutoff,
			Status:      enums.PayoutStatusPending,
		}

		// Items are stamped before the payout row exists; the schema defers
		// the payout reference check to commit.
		claimed, err := s.repo.ClaimDeliveredItemsTx(tx, vendorID, payout.ID, periodStart, cutoff)
		if err != nil {
			return err
		}
		if claimed == 0 {
			// Another run claimed the items between the sweep and here.
			return nil
		}

		totals, err := s.repo.ClaimedTotalsTx(tx, payout.ID)
		if err != nil {
			return err
		}
		payout.ItemsCount = totals.ItemsCount
		payout.AmountCents = int(totals.SubtotalCents - totals.CommissionCents)
		payout.CommissionCents = int(totals.CommissionCents)

		if err := s.repo.CreateTx(tx, payout); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventPayoutCreated,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			Data: payloads.PayoutCreatedEvent{
				PayoutID:        payout.ID,
				VendorID:        vendorID,
				PeriodStart:     payout.PeriodStart,
				PeriodEnd:       payout.PeriodEnd,
				ItemsCount:      payout.ItemsCount,
				AmountCents:     int64(payout.AmountCents),
				CommissionCents: int64(payout.CommissionCents),
			},
		}
		if err := s.events.Emit(ctx, tx, event); err != nil {
			return err
		}
		created = payout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Execute drives one payout pending|failed → processing → completed|failed.
// The transfer runs outside a DB transaction; only the status writes are
// transactional, so a crash mid-transfer leaves the payout in processing for
// operator attention rather than silently re-sending money.
func (s *service) Execute(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}

	var payout *models.Payout
	var vendor *models.Vendor
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.repo.GetByIDTx(tx, payoutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payout")
		}
		if loaded == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}

		vendor, err = s.vendors.GetByID(ctx, loaded.VendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading vendor")
		}
		if vendor == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "payout references unknown vendor")
		}
		if !vendor.PayoutsEnabled {
			return pkgerrors.New(pkgerrors.CodeConflict, "vendor has not completed payout onboarding").
				WithDetails(map[string]any{"reason": "payouts_disabled"})
		}

		ok, err := s.repo.TransitionTx(tx, loaded.ID,
			[]enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusFailed},
			enums.PayoutStatusProcessing, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking payout processing")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payout is %s, not executable", loaded.Status)).
				WithDetails(map[string]any{"status": loaded.Status})
		}
		loaded.Status = enums.PayoutStatusProcessing
		payout = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	transferErr := s.provider.Transfer(ctx, *vendor, *payout)
	now := s.now()
	if transferErr != nil {
		return s.markFailed(ctx, payout, transferErr)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.TransitionTx(tx, payout.ID,
			[]enums.PayoutStatus{enums.PayoutStatusProcessing},
			enums.PayoutStatusCompleted,
			map[string]any{"processed_at": now, "failure_reason": nil})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking payout completed")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout left processing unexpectedly")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventPayoutCompleted,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			Data: payloads.PayoutCompletedEvent{
				PayoutID:    payout.ID,
				VendorID:    payout.VendorID,
				AmountCents: int64(payout.AmountCents),
				ProcessedAt: now,
			},
		}
		return s.events.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	payout.Status = enums.PayoutStatusCompleted
	payout.ProcessedAt = &now
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payout_id":    payout.ID.String(),
			"vendor_id":    payout.VendorID.String(),
			"amount_cents": payout.AmountCents,
		})
		s.logg.Info(logCtx, "payout completed")
	}
	return payout, nil
}

func (s *service) markFailed(ctx context.Context, payout *models.Payout, cause error) (*models.Payout, error) {
	reason := cause.Error()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.TransitionTx(tx, payout.ID,
			[]enums.PayoutStatus{enums.PayoutStatusProcessing},
			enums.PayoutStatusFailed,
			map[string]any{"failure_reason": reason})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking payout failed")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout left processing unexpectedly")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventPayoutFailed,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			Data: payloads.PayoutFailedEvent{
				PayoutID:      payout.ID,
				VendorID:      payout.VendorID,
				AmountCents:   int64(payout.AmountCents),
				FailureReason: reason,
			},
		}
		return s.events.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	payout.Status = enums.PayoutStatusFailed
	payout.FailureReason = &reason
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payout_id": payout.ID.String(),
			"vendor_id": payout.VendorID.String(),
		})
		s.logg.Error(logCtx, "payout transfer failed", cause)
	}
	return payout, pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "payout transfer failed")
}

// ExecuteDue runs Execute over every payout currently waiting, skipping
// vendors still gated on onboarding. Used by the cron worker.
func (s *service) ExecuteDue(ctx context.Context) error {
	var due []models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.
			Where("status IN ?", []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusFailed}).
			Order("created_at ASC").
			Find(&due).Error
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing due payouts")
	}

	var errs error
	for _, payout := range due {
		if _, err := s.Execute(ctx, payout.ID); err != nil {
			typed := pkgerrors.As(err)
			if typed != nil && typed.Code() == pkgerrors.CodeConflict {
				// Onboarding gate; the payout keeps accumulating until the
				// vendor connects a provider.
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("payout %s: %w", payout.ID, err))
		}
	}
	return errs
}

func (s *service) Summary(ctx context.Context, vendorID uuid.UUID) (*VendorSummary, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	summary, err := s.repo.Summary(ctx, vendorID, monthStart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing payout summary")
	}
	return summary, nil
}

func (s *service) ListVendorPayouts(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Payout, string, error) {
	if vendorID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	payouts, next, err := s.repo.ListByVendor(ctx, vendorID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing payouts")
	}
	return payouts, next, nil
}
