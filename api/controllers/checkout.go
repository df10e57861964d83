package controllers

import (
	"net/http"

	"github.com/charityconnect/charityconnect-backend/api/middleware"
	"github.com/charityconnect/charityconnect-backend/api/responses"
	"github.com/charityconnect/charityconnect-backend/api/validators"
	checkoutsvc "github.com/charityconnect/charityconnect-backend/internal/checkout"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
)

type checkoutRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Qty      int    `json:"qty" validate:"required,min=1"`
	Donation string `json:"donation" validate:"omitempty,max=16"`
	Consent  bool   `json:"consent"`
}

// Checkout opens a payment session for the event and redirects the browser
// to the hosted payment page. The JSON body carries the same redirect for
// API clients that do not follow 303s.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		eventID, err := validators.ParseURLID(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Start(r.Context(), middleware.ActorFromContext(r.Context()), checkoutsvc.StartInput{
			EventID:   eventID,
			Email:     payload.Email,
			Qty:       payload.Qty,
			Donation:  payload.Donation,
			Consent:   payload.Consent,
			ClientIP:  middleware.ClientIP(r),
			UserAgent: validators.SanitizeString(r.UserAgent(), 512),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Location", result.RedirectURL)
		responses.WriteSuccessStatus(w, http.StatusSeeOther, result)
	}
}
