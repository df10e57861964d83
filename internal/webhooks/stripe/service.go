// Package stripewebhook turns verified Stripe notifications into order
// finalization.
package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/charityconnect/charityconnect-backend/internal/finalize"
	"github.com/charityconnect/charityconnect-backend/internal/orders"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/metrics"
)

// Webhook outcomes reported on stripe_webhook_events_total.
const (
	OutcomeFinalized = "finalized"
	OutcomeNotFound  = "order_not_found"
	OutcomeIgnored   = "ignored"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

type paymentLocator interface {
	LocateForPayment(ctx context.Context, clientRef, sessionRef, paymentRef string) (*models.Order, error)
	StorePaymentRef(ctx context.Context, id uint, paymentRef string) error
}

type ServiceParams struct {
	Orders    paymentLocator
	Finalizer finalize.Finalizer
	Metrics   *metrics.WebhookMetrics
	Logger    *logger.Logger
}

type Service struct {
	orders    paymentLocator
	finalizer finalize.Finalizer
	metrics   *metrics.WebhookMetrics
	logg      *logger.Logger
}

var _ paymentLocator = (orders.Service)(nil)

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Finalizer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "finalizer required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		orders:    params.Orders,
		finalizer: params.Finalizer,
		metrics:   params.Metrics,
		logg:      logg,
	}, nil
}

// HandleEvent processes one verified event. Undecodable payloads come back
// as SIGNATURE_INVALID. Unknown orders and unhandled types return nil.
// Any other error means the delivery should be retried.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeSignature, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": eventType})

	var (
		clientRef, sessionRef, paymentRef string
	)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			s.metrics.Inc(eventType, OutcomeInvalid)
			return pkgerrors.Wrap(pkgerrors.CodeSignature, err, "decode checkout session")
		}
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			s.metrics.Inc(eventType, OutcomeIgnored)
			s.logg.Info(ctx, "checkout session completed without payment, awaiting async result")
			return nil
		}
		clientRef = sess.ClientReferenceID
		sessionRef = sess.ID
		if sess.PaymentIntent != nil {
			paymentRef = sess.PaymentIntent.ID
		}
		if clientRef == "" {
			clientRef = sess.Metadata["order_id"]
		}
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			s.metrics.Inc(eventType, OutcomeInvalid)
			return pkgerrors.Wrap(pkgerrors.CodeSignature, err, "decode payment intent")
		}
		clientRef = intent.Metadata["order_id"]
		paymentRef = intent.ID
	default:
		s.metrics.Inc(eventType, OutcomeIgnored)
		return nil
	}

	err := s.finalizePayment(ctx, strings.TrimSpace(clientRef), sessionRef, paymentRef)
	switch {
	case err == nil:
		s.metrics.Inc(eventType, OutcomeFinalized)
		return nil
	case pkgerrors.Is(err, pkgerrors.CodeNotFound):
		s.metrics.Inc(eventType, OutcomeNotFound)
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"client_ref":  clientRef,
			"session_ref": sessionRef,
			"payment_ref": paymentRef,
		}), "webhook references unknown order")
		return nil
	default:
		s.metrics.Inc(eventType, OutcomeError)
		return err
	}
}

func (s *Service) finalizePayment(ctx context.Context, clientRef, sessionRef, paymentRef string) error {
	order, err := s.orders.LocateForPayment(ctx, clientRef, sessionRef, paymentRef)
	if err != nil {
		return err
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID)

	if err := s.orders.StorePaymentRef(ctx, order.ID, paymentRef); err != nil {
		return err
	}
	res, err := s.finalizer.Finalize(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("finalize order %d: %w", order.ID, err)
	}
	if !res.Transitioned {
		s.logg.Info(ctx, "order already finalized, webhook was a no-op")
	}
	return nil
}
