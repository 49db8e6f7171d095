package controllers

import (
	"net/http"

	"github.com/mfigueroa/bazario-backend/api/responses"
	"github.com/mfigueroa/bazario-backend/api/validators"
	analyticssvc "github.com/mfigueroa/bazario-backend/internal/analytics"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
)

// AdminAnalytics returns the marketplace revenue overview for one period.
func AdminAnalytics(svc analyticssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		period := analyticssvc.Period30d
		if raw := validators.ParseQueryString(r, "period"); raw != "" {
			period = analyticssvc.Period(raw)
		}

		overview, err := svc.Overview(r.Context(), period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, overview)
	}
}
