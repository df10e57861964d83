package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/charityconnect/charityconnect-backend/api/responses"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/metrics"
)

const maxWebhookBytes = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type webhookVerifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error)
}

type receivedAck struct {
	Received bool `json:"received"`
}

// StripeWebhook authenticates Stripe notifications and hands them to the
// webhook service. Only authentication and payload failures answer 400.
// Storage failures answer 500 so Stripe retries the delivery. A failing
// redelivery guard is logged and skipped.
func StripeWebhook(svc StripeWebhookService, verifier webhookVerifier, guard stripeWebhookGuard, mtr *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler misconfigured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			mtr.Inc("unknown", "invalid")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "stripe signature missing"))
			return
		}

		event, err := verifier.VerifyWebhook(payload, sigHeader)
		if err != nil {
			mtr.Inc("unknown", "invalid")
			if !pkgerrors.Is(err, pkgerrors.CodeSignature) {
				err = pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify signature")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})
		}

		// An unavailable guard falls through to the service.
		claimed := true
		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			claimed = false
			alreadyProcessed = false
			mtr.Inc(string(event.Type), "guard_unavailable")
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook idempotency guard unavailable")
			}
		}
		if alreadyProcessed {
			mtr.Inc(string(event.Type), "duplicate")
			if logg != nil {
				logg.Info(ctx, "stripe event already processed")
			}
			responses.WriteSuccess(w, receivedAck{Received: true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if claimed {
				if delErr := guard.Delete(ctx, event.ID); delErr != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "error", delErr.Error()), "release webhook idempotency key")
				}
			}
			if pkgerrors.Is(err, pkgerrors.CodeSignature) {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteErrorStatus(ctx, logg, w, http.StatusInternalServerError, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, receivedAck{Received: true})
	}
}
