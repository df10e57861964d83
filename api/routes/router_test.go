package routes

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v84"

	"github.com/charityconnect/charityconnect-backend/internal/audit"
	"github.com/charityconnect/charityconnect-backend/internal/catalog"
	checkoutsvc "github.com/charityconnect/charityconnect-backend/internal/checkout"
	"github.com/charityconnect/charityconnect-backend/internal/finalize"
	"github.com/charityconnect/charityconnect-backend/internal/orders"
	"github.com/charityconnect/charityconnect-backend/internal/receipts"
	stripewebhook "github.com/charityconnect/charityconnect-backend/internal/webhooks/stripe"
	"github.com/charityconnect/charityconnect-backend/pkg/auth"
	"github.com/charityconnect/charityconnect-backend/pkg/config"
	"github.com/charityconnect/charityconnect-backend/pkg/db"
	"github.com/charityconnect/charityconnect-backend/pkg/db/dbtest"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/metrics"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox"
	"github.com/charityconnect/charityconnect-backend/pkg/stripe"
)

const (
	webhookSecret = "whsec_router"
	sessionRef    = "cs_test_router"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

// routerGateway verifies webhooks with the real Stripe adapter and fakes
// the outbound session calls.
type routerGateway struct {
	*stripe.Gateway
}

func (routerGateway) CreateSession(ctx context.Context, req stripe.SessionRequest) (*stripe.Session, error) {
	return &stripe.Session{RedirectURL: "https://pay.test/" + sessionRef, SessionRef: sessionRef}, nil
}

func (routerGateway) RetrieveSession(ctx context.Context, ref string) (*stripe.SessionStatus, error) {
	return &stripe.SessionStatus{PaymentStatus: "paid", PaymentRef: "pi_router", Paid: true}, nil
}

type allowAll struct{}

func (allowAll) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return true, 1, nil
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "cc:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

type routerEnv struct {
	client  *db.Client
	cfg     *config.Config
	handler http.Handler
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	ctx := context.Background()
	client := dbtest.New(t)
	conn := client.DB()
	logg := logger.Nop()

	cfg := &config.Config{
		App:      config.AppConfig{Env: "test", PublicBaseURL: "https://charityconnect.test"},
		JWT:      config.JWTConfig{Secret: "router-secret", Issuer: "charityconnect", ExpirationMinutes: 15},
		Checkout: config.CheckoutConfig{RateLimitWindow: time.Minute, RateLimitPerIP: 20},
	}

	catalogRepo := catalog.NewRepository(conn)
	_, err := catalog.Seed(ctx, client, catalogRepo, time.Now())
	require.NoError(t, err)

	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	catalogSvc, err := catalog.NewService(catalog.ServiceParams{Repo: catalogRepo, TX: client, Outbox: emitter, Audit: audit.NewRecorder(), Logger: logg})
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orders.ServiceParams{Repo: orders.NewRepository(conn), DB: client})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	engine, err := finalize.NewEngine(finalize.EngineParams{
		DB:       client,
		Orders:   orders.NewRepository(conn),
		Catalog:  catalogRepo,
		Renderer: receipts.RenderFunc(func(receipts.ReceiptData) ([]byte, error) { return []byte("%PDF-1.3 router"), nil }),
		Outbox:   emitter,
		Metrics:  metrics.NewFinalizeMetrics(reg),
		Logger:   logg,
	})
	require.NoError(t, err)

	stripeClient, err := stripe.NewClient(ctx, config.StripeConfig{APIKey: "sk_test_router", Secret: webhookSecret, Env: "test"}, nil)
	require.NoError(t, err)
	realGateway, err := stripe.NewGateway(stripeClient, "eur")
	require.NoError(t, err)
	gateway := routerGateway{Gateway: realGateway}

	checkout, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Orders:        orderSvc,
		Events:        catalogSvc,
		Gateway:       gateway,
		Finalizer:     engine,
		Logger:        logg,
		PublicBaseURL: cfg.App.PublicBaseURL,
	})
	require.NoError(t, err)

	webhookMetrics := metrics.NewWebhookMetrics(reg)
	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Orders: orderSvc, Finalizer: engine, Metrics: webhookMetrics, Logger: logg})
	require.NoError(t, err)
	guard, err := stripewebhook.NewIdempotencyGuard(&memoryStore{data: map[string]string{}}, time.Hour, "stripe-webhook")
	require.NoError(t, err)

	handler := NewRouter(cfg, logg, Dependencies{
		DB:             stubPinger{},
		Redis:          stubPinger{},
		RateLimiter:    allowAll{},
		Catalog:        catalogSvc,
		Checkout:       checkout,
		Orders:         orderSvc,
		Gateway:        gateway,
		WebhookService: webhookSvc,
		WebhookGuard:   guard,
		WebhookMetrics: webhookMetrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return &routerEnv{client: client, cfg: cfg, handler: handler}
}

func (e *routerEnv) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *routerEnv) bearer(t *testing.T, role enums.Role) map[string]string {
	t.Helper()
	token, err := auth.MintAccessToken(e.cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func data[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Data
}

func signedCheckoutEvent(t *testing.T, orderID uint, secret string) ([]byte, string) {
	t.Helper()
	session := stripego.CheckoutSession{
		ID:                sessionRef,
		ClientReferenceID: strconv.FormatUint(uint64(orderID), 10),
		PaymentStatus:     stripego.CheckoutSessionPaymentStatusPaid,
		PaymentIntent:     &stripego.PaymentIntent{ID: "pi_router"},
	}
	raw, err := json.Marshal(session)
	require.NoError(t, err)
	payload, err := json.Marshal(stripego.Event{
		ID:         "evt_" + uuid.NewString(),
		Object:     "event",
		Type:       stripego.EventTypeCheckoutSessionCompleted,
		APIVersion: stripego.APIVersion,
		Data:       &stripego.EventData{Raw: raw},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return payload, fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func galaID(t *testing.T, env *routerEnv) uint {
	t.Helper()
	rec := env.do(t, http.MethodGet, "/api/v1/events", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	events := data[[]catalog.EventView](t, rec)
	require.Len(t, events, 2)
	for _, ev := range events {
		if ev.Title == "Christmas Charity Gala" {
			return ev.ID
		}
	}
	t.Fatal("seeded gala event missing")
	return 0
}

func TestHealthAndMetrics(t *testing.T) {
	env := newRouterEnv(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", nil, nil).Code)

	ready := env.do(t, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, ready.Code)
	assert.Contains(t, ready.Body.String(), `"ready"`)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/metrics", nil, nil).Code)
}

func TestPurchaseFlowThroughWebhookAndReturn(t *testing.T) {
	env := newRouterEnv(t)
	eventID := galaID(t, env)

	body := []byte(`{"email":"ann@example.ie","qty":2,"donation":"10","consent":true}`)
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/events/%d/checkout", eventID), body, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "https://pay.test/"+sessionRef, rec.Header().Get("Location"))
	started := data[checkoutsvc.StartResult](t, rec)

	var order models.Order
	require.NoError(t, env.client.DB().First(&order, started.OrderID).Error)
	assert.EqualValues(t, 11000, order.TotalCents)
	assert.Equal(t, enums.OrderStatusPending, order.Status)

	payload, header := signedCheckoutEvent(t, started.OrderID, webhookSecret)
	rec = env.do(t, http.MethodPost, "/api/v1/webhooks/stripe", payload, map[string]string{"Stripe-Signature": header})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"data":{"received":true}}`, rec.Body.String())

	// A replayed delivery is acknowledged without issuing more tickets.
	rec = env.do(t, http.MethodPost, "/api/v1/webhooks/stripe", payload, map[string]string{"Stripe-Signature": header})
	require.Equal(t, http.StatusOK, rec.Code)

	confirmPath := fmt.Sprintf("/api/v1/orders/%d?success=true&session_id=%s", started.OrderID, sessionRef)
	rec = env.do(t, http.MethodGet, confirmPath, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := data[map[string]any](t, rec)
	assert.Equal(t, "PAID", view["status"])
	assert.EqualValues(t, 11000, view["total_cents"])
	assert.Equal(t, true, view["receipt_available"])
	assert.Len(t, view["tickets"], 2)

	var tickets int64
	require.NoError(t, env.client.DB().Model(&models.Ticket{}).Where("order_id = ?", started.OrderID).Count(&tickets).Error)
	assert.EqualValues(t, 2, tickets)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/verify", started.OrderID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"paid":true`)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/receipt", started.OrderID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprintf(`attachment; filename="receipt_%d.pdf"`, started.OrderID), rec.Header().Get("Content-Disposition"))
}

func TestReturnPathFinalizesWithoutWebhook(t *testing.T) {
	env := newRouterEnv(t)
	eventID := galaID(t, env)

	body := []byte(`{"email":"bob@example.ie","qty":1,"consent":true}`)
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/events/%d/checkout", eventID), body, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	started := data[checkoutsvc.StartResult](t, rec)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d?success=true&session_id=%s", started.OrderID, sessionRef), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := data[map[string]any](t, rec)
	assert.Equal(t, "PAID", view["status"])
	assert.Len(t, view["tickets"], 1)
}

func TestTamperedWebhookNeverFinalizes(t *testing.T) {
	env := newRouterEnv(t)
	eventID := galaID(t, env)

	body := []byte(`{"email":"eve@example.ie","qty":1,"consent":true}`)
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/events/%d/checkout", eventID), body, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	started := data[checkoutsvc.StartResult](t, rec)

	payload, header := signedCheckoutEvent(t, started.OrderID, "whsec_wrong")
	rec = env.do(t, http.MethodPost, "/api/v1/webhooks/stripe", payload, map[string]string{"Stripe-Signature": header})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/webhooks/stripe", payload, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var order models.Order
	require.NoError(t, env.client.DB().First(&order, started.OrderID).Error)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
}

func TestEventAuthoringRequiresRole(t *testing.T) {
	env := newRouterEnv(t)

	var charityIDs []uint
	require.NoError(t, env.client.DB().Model(&models.Charity{}).Order("id").Pluck("id", &charityIDs).Error)
	require.GreaterOrEqual(t, len(charityIDs), 2)

	body := []byte(fmt.Sprintf(`{
		"title":"Quiz Night",
		"starts_at":%q,
		"ticket_price":"15.00",
		"published":true,
		"beneficiaries":[{"charity_id":%d,"percent":60},{"charity_id":%d,"percent":40}]
	}`, time.Now().Add(48*time.Hour).Format(time.RFC3339), charityIDs[0], charityIDs[1]))

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/v1/events", body, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/v1/events", body, env.bearer(t, enums.RoleUser)).Code)

	rec := env.do(t, http.MethodPost, "/api/v1/events", body, env.bearer(t, enums.RoleAdmin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := data[catalog.EventView](t, rec)
	assert.EqualValues(t, 1500, created.TicketPriceCents)
	assert.Len(t, created.Beneficiaries, 2)

	bad := strings.Replace(string(body), `"percent":40`, `"percent":30`, 1)
	rec = env.do(t, http.MethodPost, "/api/v1/events", []byte(bad), env.bearer(t, enums.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminVerificationRoutes(t *testing.T) {
	env := newRouterEnv(t)

	apply := []byte(`{"org_type":"charity","name":"Simon Community","email":"hello@simon.ie"}`)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/v1/verification/apply", apply, nil).Code)

	rec := env.do(t, http.MethodPost, "/api/v1/verification/apply", apply, env.bearer(t, enums.RoleUser))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := data[catalog.VerificationItem](t, rec)
	assert.Equal(t, enums.VerificationPending, item.Status)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/admin/verification", nil, env.bearer(t, enums.RoleOrganiser)).Code)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/verification", nil, env.bearer(t, enums.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	queue := data[catalog.VerificationQueue](t, rec)
	require.NotEmpty(t, queue.Charities)
	assert.Equal(t, item.ID, queue.Charities[0].ID)

	path := fmt.Sprintf("/api/v1/admin/verification/charity/%d/verify", item.ID)
	rec = env.do(t, http.MethodPost, path, nil, env.bearer(t, enums.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, data[catalog.VerificationItem](t, rec).Verified)

	rec = env.do(t, http.MethodGet, "/api/v1/charities", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Simon Community")

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/admin/verification/club/1/verify", nil, env.bearer(t, enums.RoleAdmin)).Code)
}
