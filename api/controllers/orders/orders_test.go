package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
)

type stubLedger struct {
	orders  map[uint]*models.Order
	tickets map[uint][]models.Ticket

	confirmCalls []confirmCall
}

type confirmCall struct {
	success    bool
	sessionRef string
}

func (s *stubLedger) Get(ctx context.Context, id uint) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *stubLedger) Tickets(ctx context.Context, id uint) ([]models.Ticket, error) {
	return s.tickets[id], nil
}

func (s *stubLedger) Receipt(ctx context.Context, id uint) ([]byte, string, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !order.HasReceipt() {
		return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "receipt not available")
	}
	return order.ReceiptPDF, "receipt_7.pdf", nil
}

func (s *stubLedger) ConfirmReturn(ctx context.Context, orderID uint, success bool, sessionRef string) (*models.Order, error) {
	s.confirmCalls = append(s.confirmCalls, confirmCall{success: success, sessionRef: sessionRef})
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if success && sessionRef != "" {
		order.Status = enums.OrderStatusPaid
		order.ReceiptPDF = []byte("%PDF")
		s.tickets[orderID] = []models.Ticket{{OrderID: orderID, Code: "AAAA"}, {OrderID: orderID, Code: "BBBB"}}
	}
	return order, nil
}

func newLedger() *stubLedger {
	return &stubLedger{
		orders: map[uint]*models.Order{
			7: {ID: 7, EventID: 3, Email: "ann@example.ie", Qty: 2, DonationCents: 1000, TotalCents: 11000, Status: enums.OrderStatusPending},
		},
		tickets: map[uint][]models.Ticket{},
	}
}

func withOrderID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func TestConfirmFinalizesOnSuccessfulReturn(t *testing.T) {
	ledger := newLedger()
	handler := Confirm(ledger, ledger, logger.Nop())

	req := withOrderID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/7?success=true&session_id=cs_test_1", nil), "7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, ledger.confirmCalls, 1)
	assert.Equal(t, confirmCall{success: true, sessionRef: "cs_test_1"}, ledger.confirmCalls[0])

	var view OrderView
	decodeData(t, rec, &view)
	assert.Equal(t, enums.OrderStatusPaid, view.Status)
	assert.EqualValues(t, 11000, view.TotalCents)
	assert.Equal(t, []string{"AAAA", "BBBB"}, view.Tickets)
	assert.True(t, view.ReceiptAvailable)
	assert.Equal(t, "/api/v1/orders/7/receipt", view.ReceiptURL)
}

func TestConfirmWithoutSessionShowsPendingOrder(t *testing.T) {
	ledger := newLedger()
	handler := Confirm(ledger, ledger, logger.Nop())

	req := withOrderID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/7", nil), "7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view OrderView
	decodeData(t, rec, &view)
	assert.Equal(t, enums.OrderStatusPending, view.Status)
	assert.Empty(t, view.Tickets)
	assert.False(t, view.ReceiptAvailable)
}

func TestConfirmUnknownOrder(t *testing.T) {
	ledger := newLedger()
	handler := Confirm(ledger, ledger, logger.Nop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/99", nil), "99"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/abc", nil), "abc"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerify(t *testing.T) {
	ledger := newLedger()
	handler := Verify(ledger, logger.Nop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/7/verify", nil), "7"))
	require.Equal(t, http.StatusOK, rec.Code)
	var view VerifyView
	decodeData(t, rec, &view)
	assert.Equal(t, VerifyView{OrderID: 7, Paid: false, Status: enums.OrderStatusPending}, view)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/8/verify", nil), "8"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceiptDownload(t *testing.T) {
	ledger := newLedger()
	handler := Receipt(ledger, logger.Nop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/7/receipt", nil), "7"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ledger.orders[7].ReceiptPDF = []byte("%PDF-1.3 receipt")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withOrderID(httptest.NewRequest(http.MethodGet, "/api/v1/orders/7/receipt", nil), "7"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="receipt_7.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3 receipt", rec.Body.String())
}
