package orders

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charityconnect/charityconnect-backend/api/responses"
	"github.com/charityconnect/charityconnect-backend/api/validators"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/money"
)

type returnConfirmer interface {
	ConfirmReturn(ctx context.Context, orderID uint, success bool, sessionRef string) (*models.Order, error)
}

// OrderReader is the read side of the order ledger used by these handlers.
type OrderReader interface {
	Get(ctx context.Context, id uint) (*models.Order, error)
	Tickets(ctx context.Context, id uint) ([]models.Ticket, error)
	Receipt(ctx context.Context, id uint) ([]byte, string, error)
}

// OrderView is the confirmation page payload.
type OrderView struct {
	OrderID          uint              `json:"order_id"`
	EventID          uint              `json:"event_id"`
	Status           enums.OrderStatus `json:"status"`
	Paid             bool              `json:"paid"`
	Email            string            `json:"email"`
	Qty              int               `json:"qty"`
	DonationCents    int64             `json:"donation_cents"`
	TotalCents       int64             `json:"total_cents"`
	Total            string            `json:"total"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	Tickets          []string          `json:"tickets"`
	ReceiptAvailable bool              `json:"receipt_available"`
	ReceiptURL       string            `json:"receipt_url,omitempty"`
}

// VerifyView answers whether an order id printed on a receipt is genuine.
type VerifyView struct {
	OrderID uint              `json:"order_id"`
	Paid    bool              `json:"paid"`
	Status  enums.OrderStatus `json:"status"`
}

// Confirm serves the return URL. With success=true and a session_id it
// confirms payment inline before rendering the order; gateway trouble leaves
// the order PENDING without failing the request.
func Confirm(confirmer returnConfirmer, reader OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if confirmer == nil || reader == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := validators.ParseURLID(r, "orderID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID)
		}

		success := validators.ParseQueryBool(r, "success")
		sessionRef := strings.TrimSpace(r.URL.Query().Get("session_id"))

		order, err := confirmer.ConfirmReturn(ctx, orderID, success, sessionRef)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		tickets, err := reader.Tickets(ctx, order.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toOrderView(order, tickets))
	}
}

// Verify reports the payment state of an order.
func Verify(reader OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseURLID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := reader.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, VerifyView{OrderID: order.ID, Paid: order.IsPaid(), Status: order.Status})
	}
}

// Receipt downloads the stored PDF.
func Receipt(reader OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseURLID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pdf, filename, err := reader.Receipt(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFile(w, "application/pdf", filename, pdf)
	}
}

func toOrderView(order *models.Order, tickets []models.Ticket) OrderView {
	codes := make([]string, 0, len(tickets))
	for _, t := range tickets {
		codes = append(codes, t.Code)
	}
	view := OrderView{
		OrderID:          order.ID,
		EventID:          order.EventID,
		Status:           order.Status,
		Paid:             order.IsPaid(),
		Email:            order.Email,
		Qty:              order.Qty,
		DonationCents:    order.DonationCents,
		TotalCents:       order.TotalCents,
		Total:            money.Format(order.TotalCents),
		PaidAt:           order.PaidAt,
		Tickets:          codes,
		ReceiptAvailable: order.HasReceipt(),
	}
	if view.ReceiptAvailable {
		view.ReceiptURL = fmt.Sprintf("/api/v1/orders/%d/receipt", order.ID)
	}
	return view
}
