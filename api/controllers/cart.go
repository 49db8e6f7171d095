package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/api/middleware"
	"github.com/mfigueroa/bazario-backend/api/responses"
	"github.com/mfigueroa/bazario-backend/api/validators"
	cartsvc "github.com/mfigueroa/bazario-backend/internal/cart"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
)

// CartGet returns the buyer's active cart, creating an empty one on first use.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(record))
	}
}

// CartAddLine appends a product to the buyer's cart.
func CartAddLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.AddLine(r.Context(), buyerID, cartsvc.AddLineInput{
			ProductID: payload.ProductID,
			VariantID: payload.VariantID,
			Quantity:  payload.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(record))
	}
}

// CartUpdateLine changes the quantity of one cart line.
func CartUpdateLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lineID, err := validators.ParsePathUUID(chi.URLParam(r, "lineId"), "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.UpdateLine(r.Context(), buyerID, lineID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(record))
	}
}

// CartRemoveLine drops one line from the buyer's cart.
func CartRemoveLine(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lineID, err := validators.ParsePathUUID(chi.URLParam(r, "lineId"), "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.RemoveLine(r.Context(), buyerID, lineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(record))
	}
}

// CartApplyCoupon attaches a coupon code to the buyer's cart.
func CartApplyCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload applyCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.ApplyCoupon(r.Context(), buyerID, validators.SanitizeString(payload.Code, 64))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(record))
	}
}

// CartRemoveCoupon clears any applied coupon from the buyer's cart.
func CartRemoveCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.RemoveCoupon(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(record))
	}
}

// CartSelectShipping sets the shipping tier for the buyer's cart.
func CartSelectShipping(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload selectShippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParseShippingMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping method"))
			return
		}

		record, err := svc.SelectShipping(r.Context(), buyerID, method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(record))
	}
}

// CartQuote reprices the cart against live catalog and coupon state.
func CartQuote(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newQuoteResponse(quote))
	}
}

func buyerFromContext(r *http.Request) (uuid.UUID, error) {
	buyerID := middleware.UserIDFromContext(r.Context())
	if buyerID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return buyerID, nil
}

type addLineRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity" validate:"required,min=1"`
}

type updateLineRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required,min=1,max=64"`
}

type selectShippingRequest struct {
	Method string `json:"method" validate:"required"`
}

type cartResponse struct {
	ID                uuid.UUID          `json:"id"`
	Status            string             `json:"status"`
	AppliedCouponCode *string            `json:"applied_coupon_code,omitempty"`
	ShippingMethod    string             `json:"shipping_method"`
	Lines             []cartLineResponse `json:"lines"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

type cartLineResponse struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	VendorID       uuid.UUID  `json:"vendor_id"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int        `json:"unit_price_cents"`
}

type quoteResponse struct {
	Cart          cartResponse `json:"cart"`
	SubtotalCents int          `json:"subtotal_cents"`
	DiscountCents int          `json:"discount_cents"`
	TaxCents      int          `json:"tax_cents"`
	ShippingCents int          `json:"shipping_cents"`
	TotalCents    int          `json:"total_cents"`
	CouponCode    *string      `json:"coupon_code,omitempty"`
}

func newCartResponse(record *models.Cart) cartResponse {
	if record == nil {
		return cartResponse{Lines: []cartLineResponse{}}
	}
	lines := make([]cartLineResponse, len(record.Lines))
	for i, line := range record.Lines {
		lines[i] = cartLineResponse{
			ID:             line.ID,
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			VendorID:       line.VendorID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		}
	}
	return cartResponse{
		ID:                record.ID,
		Status:            record.Status.String(),
		AppliedCouponCode: record.AppliedCouponCode,
		ShippingMethod:    record.ShippingMethod.String(),
		Lines:             lines,
		UpdatedAt:         record.UpdatedAt,
	}
}

func newQuoteResponse(quote *cartsvc.QuoteResult) quoteResponse {
	if quote == nil {
		return quoteResponse{}
	}
	out := quoteResponse{
		Cart:          newCartResponse(quote.Cart),
		SubtotalCents: quote.Summary.SubtotalCents,
		DiscountCents: quote.Summary.DiscountCents,
		TaxCents:      quote.Summary.TaxCents,
		ShippingCents: quote.Summary.ShippingCents,
		TotalCents:    quote.Summary.TotalCents,
	}
	if quote.Resolution != nil && quote.Resolution.Coupon != nil {
		code := quote.Resolution.Coupon.Code
		out.CouponCode = &code
	}
	return out
}
