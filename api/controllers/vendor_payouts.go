package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/api/middleware"
	"github.com/mfigueroa/bazario-backend/api/responses"
	payoutssvc "github.com/mfigueroa/bazario-backend/internal/payouts"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
)

// VendorPayoutsList returns the vendor's payout history, newest first.
func VendorPayoutsList(svc payoutssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := middleware.VendorIDFromContext(r.Context())
		if vendorID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing"))
			return
		}

		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, next, err := svc.ListVendorPayouts(r.Context(), *vendorID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]payoutResponse, len(records))
		for i := range records {
			items[i] = newPayoutResponse(&records[i])
		}
		responses.WriteSuccess(w, listEnvelope[payoutResponse]{Items: items, NextCursor: next})
	}
}

// VendorPayoutsSummary returns earnings totals grouped by payout status.
func VendorPayoutsSummary(svc payoutssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID := middleware.VendorIDFromContext(r.Context())
		if vendorID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing"))
			return
		}

		summary, err := svc.Summary(r.Context(), *vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, payoutSummaryResponse{
			PendingAmountCents:    summary.PendingAmountCents,
			ProcessingAmountCents: summary.ProcessingAmountCents,
			PaidThisMonthCents:    summary.PaidThisMonthCents,
			TotalPaidCents:        summary.TotalPaidCents,
		})
	}
}

type payoutResponse struct {
	ID              uuid.UUID  `json:"id"`
	PeriodStart     time.Time  `json:"period_start"`
	PeriodEnd       time.Time  `json:"period_end"`
	ItemsCount      int        `json:"items_count"`
	AmountCents     int        `json:"amount_cents"`
	CommissionCents int        `json:"commission_cents"`
	Status          string     `json:"status"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type payoutSummaryResponse struct {
	PendingAmountCents    int64 `json:"pending_amount_cents"`
	ProcessingAmountCents int64 `json:"processing_amount_cents"`
	PaidThisMonthCents    int64 `json:"paid_this_month_cents"`
	TotalPaidCents        int64 `json:"total_paid_cents"`
}

func newPayoutResponse(record *models.Payout) payoutResponse {
	if record == nil {
		return payoutResponse{}
	}
	return payoutResponse{
		ID:              record.ID,
		PeriodStart:     record.PeriodStart,
		PeriodEnd:       record.PeriodEnd,
		ItemsCount:      record.ItemsCount,
		AmountCents:     record.AmountCents,
		CommissionCents: record.CommissionCents,
		Status:          record.Status.String(),
		FailureReason:   record.FailureReason,
		ProcessedAt:     record.ProcessedAt,
		CreatedAt:       record.CreatedAt,
	}
}
