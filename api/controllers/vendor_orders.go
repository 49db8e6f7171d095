package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mfigueroa/bazario-backend/api/middleware"
	"github.com/mfigueroa/bazario-backend/api/responses"
	"github.com/mfigueroa/bazario-backend/api/validators"
	orderssvc "github.com/mfigueroa/bazario-backend/internal/orders"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
)

// VendorOrdersList returns the vendor's order items, optionally filtered by status.
func VendorOrdersList(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		var status *enums.OrderItemStatus
		if raw := validators.ParseQueryString(r, "status"); raw != "" {
			parsed, parseErr := enums.ParseOrderItemStatus(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status filter"))
				return
			}
			status = &parsed
		}

		records, next, err := svc.ListVendorItems(r.Context(), *vendorID, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]orderItemResponse, len(records))
		for i := range records {
			items[i] = newOrderItemResponse(&records[i])
		}
		responses.WriteSuccess(w, listEnvelope[orderItemResponse]{Items: items, NextCursor: next})
	}
}

// VendorOrdersTransition advances one of the vendor's order items through
// fulfillment. Shipping requires carrier and tracking number.
func VendorOrdersTransition(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		vendorID := middleware.VendorIDFromContext(r.Context())
		if vendorID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing"))
			return
		}

		itemID, err := validators.ParsePathUUID(chi.URLParam(r, "itemId"), "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		to, tracking, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := orderssvc.Actor{UserID: userID, Role: enums.ActorRoleVendor, VendorID: vendorID}
		record, err := svc.Transition(r.Context(), actor, itemID, to, tracking)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderItemResponse(record))
	}
}

type transitionRequest struct {
	Status   string                  `json:"status" validate:"required"`
	Tracking *transitionTrackingBody `json:"tracking,omitempty"`
}

type transitionTrackingBody struct {
	Carrier        string  `json:"carrier" validate:"required,min=1,max=64"`
	TrackingNumber string  `json:"tracking_number" validate:"required,min=1,max=64"`
	TrackingURL    *string `json:"tracking_url,omitempty" validate:"omitempty,url"`
}

func (r transitionRequest) toInput() (enums.OrderItemStatus, *orderssvc.TrackingInput, error) {
	to, err := enums.ParseOrderItemStatus(r.Status)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status")
	}
	var tracking *orderssvc.TrackingInput
	if r.Tracking != nil {
		tracking = &orderssvc.TrackingInput{
			Carrier:        validators.SanitizeString(r.Tracking.Carrier, 64),
			TrackingNumber: validators.SanitizeString(r.Tracking.TrackingNumber, 64),
			TrackingURL:    r.Tracking.TrackingURL,
		}
	}
	return to, tracking, nil
}
