package controllers

import (
	"net/http"
	"time"

	"github.com/charityconnect/charityconnect-backend/api/middleware"
	"github.com/charityconnect/charityconnect-backend/api/responses"
	"github.com/charityconnect/charityconnect-backend/api/validators"
	"github.com/charityconnect/charityconnect-backend/internal/catalog"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/money"
)

type eventRequest struct {
	OrganiserID   *uint                     `json:"organiser_id,omitempty"`
	Title         string                    `json:"title" validate:"required,max=200"`
	Description   string                    `json:"description" validate:"max=5000"`
	Venue         string                    `json:"venue" validate:"max=200"`
	StartsAt      time.Time                 `json:"starts_at" validate:"required"`
	TicketPrice   string                    `json:"ticket_price" validate:"required,max=16"`
	Published     bool                      `json:"published"`
	Beneficiaries []catalog.AllocationInput `json:"beneficiaries" validate:"required,dive"`
}

func (req eventRequest) toInput() (catalog.EventInput, error) {
	price, err := money.ParseEUR(req.TicketPrice)
	if err != nil {
		return catalog.EventInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ticket price").
			WithDetails(map[string]string{"ticket_price": "must be a euro amount such as 50 or 49.99"})
	}
	return catalog.EventInput{
		OrganiserID:      req.OrganiserID,
		Title:            req.Title,
		Description:      req.Description,
		Venue:            req.Venue,
		StartsAt:         req.StartsAt,
		TicketPriceCents: price,
		Published:        req.Published,
		Beneficiaries:    req.Beneficiaries,
	}, nil
}

type beneficiariesRequest struct {
	Beneficiaries []catalog.AllocationInput `json:"beneficiaries" validate:"required,dive"`
}

func ListEvents(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.ListEvents(r.Context(), middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, events)
	}
}

func GetEvent(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseURLID(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.GetEvent(r.Context(), middleware.ActorFromContext(r.Context()), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

func CreateEvent(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload eventRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.CreateEvent(r.Context(), middleware.ActorFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, event)
	}
}

func UpdateEvent(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseURLID(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload eventRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.UpdateEvent(r.Context(), middleware.ActorFromContext(r.Context()), eventID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

// ReplaceBeneficiaries swaps the full allocation set of an event.
func ReplaceBeneficiaries(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseURLID(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload beneficiariesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.ReplaceBeneficiaries(r.Context(), middleware.ActorFromContext(r.Context()), eventID, payload.Beneficiaries)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

func ListCharities(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		charities, err := svc.ListVerifiedCharities(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, charities)
	}
}
