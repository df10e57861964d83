// Package checkout opens payment sessions for new orders and confirms them
// when the purchaser returns from the hosted payment page.
package checkout

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charityconnect/charityconnect-backend/internal/finalize"
	"github.com/charityconnect/charityconnect-backend/internal/orders"
	"github.com/charityconnect/charityconnect-backend/pkg/auth"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/money"
	"github.com/charityconnect/charityconnect-backend/pkg/stripe"
)

const defaultConfirmTimeout = 5 * time.Second

// Gateway is the subset of the payment gateway checkout needs.
type Gateway interface {
	CreateSession(ctx context.Context, req stripe.SessionRequest) (*stripe.Session, error)
	RetrieveSession(ctx context.Context, sessionRef string) (*stripe.SessionStatus, error)
}

type eventLoader interface {
	LoadEvent(ctx context.Context, eventID uint) (*models.Event, error)
}

// Service runs the purchase flow.
type Service interface {
	Start(ctx context.Context, actor auth.Actor, input StartInput) (*StartResult, error)
	ConfirmReturn(ctx context.Context, orderID uint, success bool, sessionRef string) (*models.Order, error)
}

// StartInput is the checkout form as submitted.
type StartInput struct {
	EventID   uint
	Email     string
	Qty       int
	Donation  string
	Consent   bool
	ClientIP  string
	UserAgent string
}

// StartResult points the purchaser at the hosted payment page.
type StartResult struct {
	OrderID     uint   `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
}

// ServiceParams groups the dependencies for NewService.
type ServiceParams struct {
	Orders         orders.Service
	Events         eventLoader
	Gateway        Gateway
	Finalizer      finalize.Finalizer
	Logger         *logger.Logger
	PublicBaseURL  string
	ConfirmTimeout time.Duration
	Now            func() time.Time
}

type service struct {
	orders    orders.Service
	events    eventLoader
	gateway   Gateway
	finalizer finalize.Finalizer
	logg      *logger.Logger
	baseURL   string
	timeout   time.Duration
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event loader required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Finalizer == nil {
		return nil, fmt.Errorf("finalizer required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.ConfirmTimeout
	if timeout <= 0 {
		timeout = defaultConfirmTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		orders:    params.Orders,
		events:    params.Events,
		gateway:   params.Gateway,
		finalizer: params.Finalizer,
		logg:      logg,
		baseURL:   strings.TrimRight(params.PublicBaseURL, "/"),
		timeout:   timeout,
		now:       now,
	}, nil
}

// Start records a PENDING order and opens a hosted payment session for it.
// A gateway failure leaves the PENDING order behind.
func (s *service) Start(ctx context.Context, actor auth.Actor, input StartInput) (*StartResult, error) {
	fields := map[string]string{}
	if !input.Consent {
		fields["consent"] = "consent is required"
	}
	donation, err := money.ParseEUR(input.Donation)
	if err != nil {
		fields["donation"] = err.Error()
	}
	if len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid checkout").WithDetails(fields)
	}

	event, err := s.events.LoadEvent(ctx, input.EventID)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.CreatePending(ctx, orders.CreateOrderInput{
		Event:         event,
		Email:         input.Email,
		Qty:           input.Qty,
		DonationCents: donation,
		UserID:        actor.UserRef(),
		Consent: &orders.Consent{
			At:        s.now(),
			IP:        input.ClientIP,
			UserAgent: input.UserAgent,
		},
	})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID)

	session, err := s.gateway.CreateSession(ctx, s.sessionRequest(order, event))
	if err != nil {
		s.logg.Error(ctx, "open payment session failed", err)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open payment session")
	}

	if err := s.orders.AttachSession(ctx, order.ID, session.SessionRef, session.PaymentRef); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event_id":    event.ID,
		"qty":         order.Qty,
		"total_cents": order.TotalCents,
	}), "checkout started")
	return &StartResult{OrderID: order.ID, RedirectURL: session.RedirectURL}, nil
}

func (s *service) sessionRequest(order *models.Order, event *models.Event) stripe.SessionRequest {
	id := strconv.FormatUint(uint64(order.ID), 10)
	lines := []stripe.AmountLine{{
		Name:            event.Title,
		UnitAmountCents: event.TicketPriceCents,
		Quantity:        int64(order.Qty),
	}}
	if order.DonationCents > 0 {
		lines = append(lines, stripe.AmountLine{Name: "Donation", UnitAmountCents: order.DonationCents, Quantity: 1})
	}
	return stripe.SessionRequest{
		Lines:           lines,
		SuccessURL:      fmt.Sprintf("%s/orders/%s?success=true&session_id={CHECKOUT_SESSION_ID}", s.baseURL, id),
		CancelURL:       fmt.Sprintf("%s/events/%d", s.baseURL, event.ID),
		ClientReference: id,
		CustomerEmail:   order.Email,
		Metadata: map[string]string{
			"order_id":       id,
			"event_id":       strconv.FormatUint(uint64(event.ID), 10),
			"donation_cents": strconv.FormatInt(order.DonationCents, 10),
		},
	}
}

// ConfirmReturn checks the session with the gateway and finalizes a paid
// order. Gateway trouble never fails the request; the order stays PENDING
// for the webhook or the reconcile job. A PAID order still missing its
// receipt is finalized again without asking the gateway.
func (s *service) ConfirmReturn(ctx context.Context, orderID uint, success bool, sessionRef string) (*models.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID)
	if order.IsPaid() {
		if order.HasReceipt() {
			return order, nil
		}
		return s.finalize(ctx, order), nil
	}
	sessionRef = strings.TrimSpace(sessionRef)
	if !success || sessionRef == "" {
		return order, nil
	}
	if order.StripeSessionID != nil && *order.StripeSessionID != sessionRef {
		s.logg.Warn(s.logg.WithField(ctx, "session_ref", sessionRef), "return session does not match order")
		return order, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	status, err := s.gateway.RetrieveSession(lookupCtx, sessionRef)
	cancel()
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "session lookup failed, leaving order pending")
		return order, nil
	}
	if !status.Paid {
		return order, nil
	}

	if err := s.orders.StorePaymentRef(ctx, order.ID, status.PaymentRef); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "store payment ref failed")
	}

	return s.finalize(ctx, order), nil
}

func (s *service) finalize(ctx context.Context, order *models.Order) *models.Order {
	res, err := s.finalizer.Finalize(ctx, order.ID)
	if err != nil {
		s.logg.Error(ctx, "finalize on return failed", err)
		if fresh, getErr := s.orders.Get(ctx, order.ID); getErr == nil {
			return fresh
		}
		return order
	}
	return res.Order
}
