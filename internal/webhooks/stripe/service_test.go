package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/charityconnect/charityconnect-backend/internal/catalog"
	"github.com/charityconnect/charityconnect-backend/internal/finalize"
	"github.com/charityconnect/charityconnect-backend/internal/orders"
	"github.com/charityconnect/charityconnect-backend/internal/receipts"
	"github.com/charityconnect/charityconnect-backend/pkg/db"
	"github.com/charityconnect/charityconnect-backend/pkg/db/dbtest"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox"
	"github.com/charityconnect/charityconnect-backend/pkg/redis"
)

type webhookEnv struct {
	client  *db.Client
	orders  orders.Service
	engine  *finalize.Engine
	svc     *Service
	orderID uint
}

func newWebhookEnv(t *testing.T) *webhookEnv {
	t.Helper()
	client := dbtest.New(t)
	conn := client.DB()

	orderSvc, err := orders.NewService(orders.ServiceParams{Repo: orders.NewRepository(conn), DB: client})
	require.NoError(t, err)
	engine, err := finalize.NewEngine(finalize.EngineParams{
		DB:       client,
		Orders:   orders.NewRepository(conn),
		Catalog:  catalog.NewRepository(conn),
		Renderer: receipts.RenderFunc(func(receipts.ReceiptData) ([]byte, error) { return []byte("%PDF-1.3"), nil }),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{Orders: orderSvc, Finalizer: engine})
	require.NoError(t, err)

	organiser := &models.Organiser{Name: "Org", ContactEmail: "org@example.com", Status: enums.VerificationVerified, Verified: true}
	require.NoError(t, conn.Create(organiser).Error)
	event := &models.Event{OrganiserID: organiser.ID, Title: "Gala", StartsAt: time.Now().Add(time.Hour), TicketPriceCents: 5000, Published: true}
	require.NoError(t, conn.Omit("Beneficiaries", "Organiser").Create(event).Error)
	session := "cs_test_42"
	order := &models.Order{
		EventID:         event.ID,
		Email:           "donor@example.com",
		Qty:             2,
		DonationCents:   1000,
		TotalCents:      11000,
		Status:          enums.OrderStatusPending,
		StripeSessionID: &session,
	}
	require.NoError(t, conn.Create(order).Error)

	return &webhookEnv{client: client, orders: orderSvc, engine: engine, svc: svc, orderID: order.ID}
}

func (e *webhookEnv) tickets(t *testing.T) int {
	t.Helper()
	tickets, err := e.orders.Tickets(context.Background(), e.orderID)
	require.NoError(t, err)
	return len(tickets)
}

func (e *webhookEnv) paidEvents(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderPaid).Count(&n).Error)
	return n
}

func sessionCompleted(t *testing.T, body map[string]any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return &stripe.Event{
		ID:   "evt_1",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleSessionCompletedFinalizesOrder(t *testing.T) {
	env := newWebhookEnv(t)
	event := sessionCompleted(t, map[string]any{
		"id":                  "cs_test_42",
		"object":              "checkout.session",
		"client_reference_id": fmt.Sprint(env.orderID),
		"payment_status":      "paid",
		"payment_intent":      "pi_42",
	})

	require.NoError(t, env.svc.HandleEvent(context.Background(), event))

	order, err := env.orders.Get(context.Background(), env.orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	require.NotNil(t, order.StripePaymentIntent)
	assert.Equal(t, "pi_42", *order.StripePaymentIntent)
	assert.Equal(t, 2, env.tickets(t))
}

func TestHandleSessionCompletedAfterReturnIsNoop(t *testing.T) {
	env := newWebhookEnv(t)
	ctx := context.Background()
	first, err := env.engine.Finalize(ctx, env.orderID)
	require.NoError(t, err)
	require.True(t, first.Transitioned)

	event := sessionCompleted(t, map[string]any{
		"id":             "cs_test_42",
		"object":         "checkout.session",
		"payment_status": "paid",
	})
	require.NoError(t, env.svc.HandleEvent(ctx, event))

	order, err := env.orders.Get(ctx, env.orderID)
	require.NoError(t, err)
	assert.Equal(t, first.Order.ReceiptPDF, order.ReceiptPDF)
	assert.Equal(t, 2, env.tickets(t))
	assert.Equal(t, int64(1), env.paidEvents(t))
}

func TestHandlePaymentIntentSucceededUsesMetadata(t *testing.T) {
	env := newWebhookEnv(t)
	raw, err := json.Marshal(map[string]any{
		"id":       "pi_meta",
		"object":   "payment_intent",
		"metadata": map[string]string{"order_id": fmt.Sprint(env.orderID)},
	})
	require.NoError(t, err)

	err = env.svc.HandleEvent(context.Background(), &stripe.Event{
		ID:   "evt_2",
		Type: stripe.EventTypePaymentIntentSucceeded,
		Data: &stripe.EventData{Raw: raw},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, env.tickets(t))
}

func TestHandleEventUnknownOrderIsAcknowledged(t *testing.T) {
	env := newWebhookEnv(t)
	event := sessionCompleted(t, map[string]any{
		"id":                  "cs_unknown",
		"object":              "checkout.session",
		"client_reference_id": "9999",
		"payment_status":      "paid",
	})
	require.NoError(t, env.svc.HandleEvent(context.Background(), event))
	assert.Zero(t, env.tickets(t))
}

func TestHandleEventRejectsUndecodablePayload(t *testing.T) {
	env := newWebhookEnv(t)
	err := env.svc.HandleEvent(context.Background(), &stripe.Event{
		ID:   "evt_bad",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: json.RawMessage(`{"id": 42`)},
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeSignature))

	err = env.svc.HandleEvent(context.Background(), nil)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeSignature))
	assert.Zero(t, env.tickets(t))
}

func TestHandleEventIgnoresUnpaidAndOtherTypes(t *testing.T) {
	env := newWebhookEnv(t)
	event := sessionCompleted(t, map[string]any{
		"id":             "cs_test_42",
		"object":         "checkout.session",
		"payment_status": "unpaid",
	})
	require.NoError(t, env.svc.HandleEvent(context.Background(), event))

	require.NoError(t, env.svc.HandleEvent(context.Background(), &stripe.Event{
		ID:   "evt_other",
		Type: stripe.EventTypeCustomerCreated,
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}))
	assert.Zero(t, env.tickets(t))
}

type brokenFinalizer struct{}

func (brokenFinalizer) Finalize(ctx context.Context, orderID uint) (*finalize.Result, error) {
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("disk full"), "mark order paid")
}

func TestHandleEventSurfacesFinalizeErrors(t *testing.T) {
	env := newWebhookEnv(t)
	svc, err := NewService(ServiceParams{Orders: env.orders, Finalizer: brokenFinalizer{}})
	require.NoError(t, err)

	event := sessionCompleted(t, map[string]any{
		"id":             "cs_test_42",
		"object":         "checkout.session",
		"payment_status": "paid",
	})
	err = svc.HandleEvent(context.Background(), event)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
}

func TestIdempotencyGuard(t *testing.T) {
	ctx := context.Background()
	raw, mock := redismock.NewClientMock()
	store := redis.FromClient(raw)
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe_webhook")
	require.NoError(t, err)

	key := store.IdempotencyKey("stripe_webhook", "evt_1")
	mock.ExpectSetNX(key, "1", time.Hour).SetVal(true)
	mock.ExpectSetNX(key, "1", time.Hour).SetVal(false)
	mock.ExpectDel(key).SetVal(1)

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "evt_1"))
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = guard.CheckAndMark(ctx, " ")
	require.Error(t, err)
}

func TestNewIdempotencyGuardValidates(t *testing.T) {
	raw, _ := redismock.NewClientMock()
	store := redis.FromClient(raw)

	_, err := NewIdempotencyGuard(nil, time.Hour, "s")
	require.Error(t, err)
	_, err = NewIdempotencyGuard(store, -time.Second, "s")
	require.Error(t, err)
	_, err = NewIdempotencyGuard(store, time.Hour, "")
	require.Error(t, err)

	guard, err := NewIdempotencyGuard(store, 0, "s")
	require.NoError(t, err)
	assert.Equal(t, DefaultGuardTTL, guard.ttl)
}
