package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/charityconnect/charityconnect-backend/api/middleware"
	"github.com/charityconnect/charityconnect-backend/api/responses"
	"github.com/charityconnect/charityconnect-backend/api/validators"
	"github.com/charityconnect/charityconnect-backend/internal/catalog"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
)

type applyRequest struct {
	OrgType       string `json:"org_type" validate:"required,oneof=organiser charity"`
	Name          string `json:"name" validate:"required,max=200"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Phone         string `json:"phone,omitempty" validate:"max=40"`
	Website       string `json:"website,omitempty" validate:"omitempty,url,max=500"`
	CharityNumber string `json:"charity_number,omitempty" validate:"max=64"`
}

func ApplyForVerification(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload applyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Apply(r.Context(), middleware.ActorFromContext(r.Context()), catalog.ApplyInput{
			OrgType:       enums.OrgType(payload.OrgType),
			Name:          validators.SanitizeString(payload.Name, 200),
			Email:         payload.Email,
			Phone:         validators.SanitizeString(payload.Phone, 40),
			Website:       validators.SanitizeString(payload.Website, 500),
			CharityNumber: validators.SanitizeString(payload.CharityNumber, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func ListVerifications(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queue, err := svc.ListPendingVerifications(r.Context(), middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, queue)
	}
}

// SetVerification applies verify, unverify, reject or restore to one org.
func SetVerification(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgType, err := enums.ParseOrgType(chi.URLParam(r, "orgType"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid org type").
				WithDetails(map[string]string{"org_type": "must be organiser or charity"}))
			return
		}
		action, err := enums.ParseVerificationAction(chi.URLParam(r, "action"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action").
				WithDetails(map[string]string{"action": "must be verify, unverify, reject or restore"}))
			return
		}
		id, err := validators.ParseURLID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.SetVerification(r.Context(), middleware.ActorFromContext(r.Context()), orgType, id, action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}
