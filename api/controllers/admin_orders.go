package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mfigueroa/bazario-backend/api/middleware"
	"github.com/mfigueroa/bazario-backend/api/responses"
	"github.com/mfigueroa/bazario-backend/api/validators"
	orderssvc "github.com/mfigueroa/bazario-backend/internal/orders"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
)

// AdminOrdersTransition applies an administrative state change to one order
// item. Admins cancel pre-fulfillment items and refund delivered ones.
func AdminOrdersTransition(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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

		actor := orderssvc.Actor{
			UserID: middleware.UserIDFromContext(r.Context()),
			Role:   enums.ActorRoleAdmin,
		}
		record, err := svc.Transition(r.Context(), actor, itemID, to, tracking)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderItemResponse(record))
	}
}
