package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charityconnect/charityconnect-backend/internal/audit"
	"github.com/charityconnect/charityconnect-backend/internal/catalog"
	"github.com/charityconnect/charityconnect-backend/internal/finalize"
	"github.com/charityconnect/charityconnect-backend/internal/orders"
	"github.com/charityconnect/charityconnect-backend/internal/receipts"
	"github.com/charityconnect/charityconnect-backend/pkg/auth"
	"github.com/charityconnect/charityconnect-backend/pkg/db"
	"github.com/charityconnect/charityconnect-backend/pkg/db/dbtest"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox"
	"github.com/charityconnect/charityconnect-backend/pkg/stripe"
)

type stubGateway struct {
	createErr   error
	retrieveErr error
	status      *stripe.SessionStatus
	requests    []stripe.SessionRequest
	retrieved   []string
}

func (g *stubGateway) CreateSession(ctx context.Context, req stripe.SessionRequest) (*stripe.Session, error) {
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &stripe.Session{RedirectURL: "https://pay.example/cs_test_1", SessionRef: "cs_test_1"}, nil
}

func (g *stubGateway) RetrieveSession(ctx context.Context, sessionRef string) (*stripe.SessionStatus, error) {
	g.retrieved = append(g.retrieved, sessionRef)
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	if g.status == nil {
		return &stripe.SessionStatus{PaymentStatus: "unpaid"}, nil
	}
	return g.status, nil
}

type failingFinalizer struct{ calls int }

func (f *failingFinalizer) Finalize(ctx context.Context, orderID uint) (*finalize.Result, error) {
	f.calls++
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "database gone")
}

type testEnv struct {
	client  *db.Client
	svc     Service
	orders  orders.Service
	gateway *stubGateway
	eventID uint
}

func newEnv(t *testing.T, finalizer finalize.Finalizer) *testEnv {
	t.Helper()
	client := dbtest.New(t)
	conn := client.DB()

	orderSvc, err := orders.NewService(orders.ServiceParams{Repo: orders.NewRepository(conn), DB: client})
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	catalogSvc, err := catalog.NewService(catalog.ServiceParams{
		Repo:   catalog.NewRepository(conn),
		TX:     client,
		Outbox: emitter,
		Audit:  audit.NewRecorder(),
	})
	require.NoError(t, err)

	if finalizer == nil {
		engine, err := finalize.NewEngine(finalize.EngineParams{
			DB:       client,
			Orders:   orders.NewRepository(conn),
			Catalog:  catalog.NewRepository(conn),
			Renderer: receipts.RenderFunc(func(receipts.ReceiptData) ([]byte, error) { return []byte("%PDF-1.3"), nil }),
			Outbox:   emitter,
		})
		require.NoError(t, err)
		finalizer = engine
	}

	gateway := &stubGateway{}
	svc, err := NewService(ServiceParams{
		Orders:        orderSvc,
		Events:        catalogSvc,
		Gateway:       gateway,
		Finalizer:     finalizer,
		PublicBaseURL: "https://charityconnect.test/",
	})
	require.NoError(t, err)

	organiser := &models.Organiser{Name: "Org", ContactEmail: "org@example.com", Status: enums.VerificationVerified, Verified: true}
	require.NoError(t, conn.Create(organiser).Error)
	event := &models.Event{
		OrganiserID:      organiser.ID,
		Title:            "Christmas Charity Gala",
		StartsAt:         time.Now().Add(72 * time.Hour),
		TicketPriceCents: 5000,
		Published:        true,
	}
	require.NoError(t, conn.Omit("Beneficiaries", "Organiser").Create(event).Error)

	return &testEnv{client: client, svc: svc, orders: orderSvc, gateway: gateway, eventID: event.ID}
}

func (e *testEnv) start(t *testing.T) *StartResult {
	t.Helper()
	res, err := e.svc.Start(context.Background(), auth.Anonymous, StartInput{
		EventID:   e.eventID,
		Email:     "donor@example.com",
		Qty:       2,
		Donation:  "10",
		Consent:   true,
		ClientIP:  "203.0.113.9",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	return res
}

func TestStartOpensSessionForPendingOrder(t *testing.T) {
	env := newEnv(t, nil)
	res := env.start(t)
	assert.Equal(t, "https://pay.example/cs_test_1", res.RedirectURL)

	order, err := env.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, int64(11000), order.TotalCents)
	require.NotNil(t, order.StripeSessionID)
	assert.Equal(t, "cs_test_1", *order.StripeSessionID)
	require.NotNil(t, order.ConsentCheckoutAt)

	require.Len(t, env.gateway.requests, 1)
	req := env.gateway.requests[0]
	require.Len(t, req.Lines, 2)
	assert.Equal(t, int64(5000), req.Lines[0].UnitAmountCents)
	assert.Equal(t, int64(2), req.Lines[0].Quantity)
	assert.Equal(t, "Donation", req.Lines[1].Name)
	assert.Equal(t, int64(1000), req.Lines[1].UnitAmountCents)
	assert.Contains(t, req.SuccessURL, "https://charityconnect.test/orders/")
	assert.Contains(t, req.SuccessURL, "session_id={CHECKOUT_SESSION_ID}")
	assert.Equal(t, "1000", req.Metadata["donation_cents"])
}

func TestStartWithoutDonationHasSingleLine(t *testing.T) {
	env := newEnv(t, nil)
	_, err := env.svc.Start(context.Background(), auth.Anonymous, StartInput{
		EventID: env.eventID, Email: "donor@example.com", Qty: 1, Consent: true,
	})
	require.NoError(t, err)
	require.Len(t, env.gateway.requests[0].Lines, 1)
}

func TestStartValidatesInput(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Start(ctx, auth.Anonymous, StartInput{EventID: env.eventID, Email: "donor@example.com", Qty: 1, Donation: "-5"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "consent")
	assert.Contains(t, details, "donation")

	_, err = env.svc.Start(ctx, auth.Anonymous, StartInput{EventID: env.eventID, Email: "donor@example.com", Qty: 11, Consent: true})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = env.svc.Start(ctx, auth.Anonymous, StartInput{EventID: 999, Email: "donor@example.com", Qty: 1, Consent: true})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	assert.Empty(t, env.gateway.requests)
}

func TestStartGatewayFailureKeepsPendingOrder(t *testing.T) {
	env := newEnv(t, nil)
	env.gateway.createErr = errors.New("connection refused")

	_, err := env.svc.Start(context.Background(), auth.Anonymous, StartInput{
		EventID: env.eventID, Email: "donor@example.com", Qty: 1, Consent: true,
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))

	var count int64
	require.NoError(t, env.client.DB().Model(&models.Order{}).Where("status = ?", enums.OrderStatusPending).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConfirmReturnFinalizesPaidSession(t *testing.T) {
	env := newEnv(t, nil)
	res := env.start(t)
	env.gateway.status = &stripe.SessionStatus{PaymentStatus: "paid", PaymentRef: "pi_123", Paid: true}

	order, err := env.svc.ConfirmReturn(context.Background(), res.OrderID, true, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	require.NotNil(t, order.StripePaymentIntent)
	assert.Equal(t, "pi_123", *order.StripePaymentIntent)

	tickets, err := env.orders.Tickets(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	again, err := env.svc.ConfirmReturn(context.Background(), res.OrderID, true, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, again.Status)
	assert.Len(t, env.gateway.retrieved, 1, "paid orders skip the gateway")
}

func TestConfirmReturnLeavesPendingWhenGatewayFails(t *testing.T) {
	env := newEnv(t, nil)
	res := env.start(t)
	env.gateway.retrieveErr = context.DeadlineExceeded

	order, err := env.svc.ConfirmReturn(context.Background(), res.OrderID, true, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
}

func TestConfirmReturnIgnoresUnpaidAndMismatchedSessions(t *testing.T) {
	env := newEnv(t, nil)
	res := env.start(t)
	ctx := context.Background()

	order, err := env.svc.ConfirmReturn(ctx, res.OrderID, true, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)

	env.gateway.status = &stripe.SessionStatus{Paid: true}
	order, err = env.svc.ConfirmReturn(ctx, res.OrderID, true, "cs_other")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)

	order, err = env.svc.ConfirmReturn(ctx, res.OrderID, false, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Len(t, env.gateway.retrieved, 1)
}

func TestConfirmReturnSurvivesFinalizeError(t *testing.T) {
	finalizer := &failingFinalizer{}
	env := newEnv(t, finalizer)
	res := env.start(t)
	env.gateway.status = &stripe.SessionStatus{Paid: true, PaymentRef: "pi_9"}

	order, err := env.svc.ConfirmReturn(context.Background(), res.OrderID, true, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, 1, finalizer.calls)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	require.NotNil(t, order.StripePaymentIntent)
}

func TestConfirmReturnRebuildsMissingReceiptOnPaidOrder(t *testing.T) {
	env := newEnv(t, nil)
	res := env.start(t)
	require.NoError(t, env.client.DB().Model(&models.Order{}).
		Where("id = ?", res.OrderID).
		Updates(map[string]any{"status": enums.OrderStatusPaid, "paid_at": time.Now()}).Error)

	order, err := env.svc.ConfirmReturn(context.Background(), res.OrderID, false, "")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.True(t, order.HasReceipt(), "receipt rendered on revisit")
	assert.Empty(t, env.gateway.retrieved, "paid orders skip the gateway")

	tickets, err := env.orders.Tickets(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestConfirmReturnUnknownOrder(t *testing.T) {
	env := newEnv(t, nil)
	_, err := env.svc.ConfirmReturn(context.Background(), 404, true, "cs")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
