package stripe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
)

const defaultCurrency = "eur"

// AmountLine is one priced line on the hosted payment page.
type AmountLine struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
}

// SessionRequest describes the hosted payment session to open.
type SessionRequest struct {
	Lines           []AmountLine
	SuccessURL      string
	CancelURL       string
	ClientReference string
	Metadata        map[string]string
	CustomerEmail   string
}

// Session is the result of opening a hosted payment session.
type Session struct {
	RedirectURL string
	SessionRef  string
	PaymentRef  string
}

// SessionStatus is the gateway's view of a session's payment state.
type SessionStatus struct {
	PaymentStatus string
	PaymentRef    string
	Paid          bool
}

// PaymentGateway is the contract consumed by checkout, webhook and cron code.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	RetrieveSession(ctx context.Context, sessionRef string) (*SessionStatus, error)
	VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error)
}

// sessionAPI is the slice of stripe.Client.V1CheckoutSessions the gateway uses.
type sessionAPI interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	Retrieve(ctx context.Context, id string, params *stripe.CheckoutSessionRetrieveParams) (*stripe.CheckoutSession, error)
}

// Gateway adapts Stripe Checkout to PaymentGateway.
type Gateway struct {
	sessions sessionAPI
	secret   string
	timeout  time.Duration
	currency string
}

// NewGateway builds the Checkout-backed gateway. currency defaults to eur.
func NewGateway(client *Client, currency string) (*Gateway, error) {
	if client == nil || client.API() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return newGateway(client.API().V1CheckoutSessions, client.SigningSecret(), client.Timeout(), currency), nil
}

func newGateway(api sessionAPI, secret string, timeout time.Duration, currency string) *Gateway {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Gateway{sessions: api, secret: secret, timeout: timeout, currency: currency}
}

// CreateSession opens a payment-mode Checkout session with inline price data.
func (g *Gateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if len(req.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "success and cancel urls are required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.ClientReference != "" {
		params.ClientReferenceID = stripe.String(req.ClientReference)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, line := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionCreateLineItemParams{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(line.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}
	if len(req.Metadata) > 0 {
		params.PaymentIntentData = &stripe.CheckoutSessionCreatePaymentIntentDataParams{}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
			params.PaymentIntentData.AddMetadata(k, v)
		}
	}

	sess, err := g.sessions.Create(ctx, params)
	if err != nil {
		return nil, gatewayError(err, "create checkout session")
	}
	return &Session{
		RedirectURL: sess.URL,
		SessionRef:  sess.ID,
		PaymentRef:  paymentIntentID(sess),
	}, nil
}

// RetrieveSession fetches the session and reports whether it has been paid.
func (g *Gateway) RetrieveSession(ctx context.Context, sessionRef string) (*SessionStatus, error) {
	sessionRef = strings.TrimSpace(sessionRef)
	if sessionRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session reference is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	sess, err := g.sessions.Retrieve(ctx, sessionRef, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return nil, gatewayError(err, "retrieve checkout session")
	}
	return &SessionStatus{
		PaymentStatus: string(sess.PaymentStatus),
		PaymentRef:    paymentIntentID(sess),
		Paid:          sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}, nil
}

// VerifyWebhook authenticates the payload against the signing secret.
func (g *Gateway) VerifyWebhook(payload []byte, signatureHeader string) (stripe.Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeSignature, "stripe signature missing")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify stripe signature")
	}
	return event, nil
}

func paymentIntentID(sess *stripe.CheckoutSession) string {
	if sess == nil || sess.PaymentIntent == nil {
		return ""
	}
	return sess.PaymentIntent.ID
}

func gatewayError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message+": timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
