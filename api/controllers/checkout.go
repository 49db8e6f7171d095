package controllers

import (
	"net/http"

	"github.com/mfigueroa/bazario-backend/api/responses"
	"github.com/mfigueroa/bazario-backend/api/validators"
	checkoutsvc "github.com/mfigueroa/bazario-backend/internal/checkout"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
	"github.com/mfigueroa/bazario-backend/pkg/types"
)

// Checkout converts the buyer's active cart into a frozen order. The payment
// reference must name a verified, unconsumed confirmation for the cart total.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), buyerID, checkoutsvc.Input{
			PaymentRef:      validators.SanitizeString(payload.PaymentRef, 128),
			ShippingAddress: payload.ShippingAddress,
			BillingAddress:  payload.BillingAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

type checkoutRequest struct {
	PaymentRef      string        `json:"payment_ref" validate:"required,min=1,max=128"`
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
	BillingAddress  types.Address `json:"billing_address" validate:"required"`
}
