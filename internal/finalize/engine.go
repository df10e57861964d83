// Package finalize moves a paid order to its terminal state: PAID, qty
// tickets and one stored receipt. Every trigger funnels through Engine.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/charityconnect/charityconnect-backend/internal/catalog"
	"github.com/charityconnect/charityconnect-backend/internal/orders"
	"github.com/charityconnect/charityconnect-backend/internal/receipts"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/metrics"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Finalizer is the surface the return path, webhook and cron consume.
type Finalizer interface {
	Finalize(ctx context.Context, orderID uint) (*Result, error)
}

// Result reports what one Finalize call changed.
type Result struct {
	Order         *models.Order
	Transitioned  bool
	TicketsMinted int
	ReceiptStored bool
	ReceiptFailed bool
}

// EngineParams groups the dependencies for NewEngine.
type EngineParams struct {
	DB            txRunner
	Orders        orders.Repository
	Catalog       catalog.Repository
	Renderer      receipts.Renderer
	Outbox        outbox.Emitter
	Metrics       *metrics.FinalizeMetrics
	Logger        *logger.Logger
	PublicBaseURL string
	Now           func() time.Time
}

type Engine struct {
	db       txRunner
	orders   orders.Repository
	catalog  catalog.Repository
	renderer receipts.Renderer
	outbox   outbox.Emitter
	metrics  *metrics.FinalizeMetrics
	logg     *logger.Logger
	baseURL  string
	now      func() time.Time
}

// NewEngine validates the dependencies and builds an Engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Renderer == nil {
		return nil, fmt.Errorf("receipt renderer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		db:       params.DB,
		orders:   params.Orders,
		catalog:  params.Catalog,
		renderer: params.Renderer,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     logg,
		baseURL:  params.PublicBaseURL,
		now:      now,
	}, nil
}

// TicketCode is the globally unique admission code for seq within an order.
func TicketCode(orderID uint, seq int) string {
	return fmt.Sprintf("T%06d-%02d", orderID, seq)
}

// Finalize is idempotent and safe to call concurrently. N calls leave the
// same state as one.
func (e *Engine) Finalize(ctx context.Context, orderID uint) (*Result, error) {
	started := time.Now()
	ctx = e.logg.WithOrderID(ctx, orderID)

	res := &Result{}
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.orders.WithTx(tx)

		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}

		if order.Status != enums.OrderStatusPaid {
			now := e.now()
			rows, err := repo.MarkPaid(ctx, order.ID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
			}
			if rows == 1 {
				res.Transitioned = true
				order.Status = enums.OrderStatusPaid
				order.PaidAt = &now
			}
		}

		minted, err := e.mintTickets(ctx, repo, order)
		if err != nil {
			return err
		}
		res.TicketsMinted = minted

		if !order.HasReceipt() {
			if err := e.attachReceipt(ctx, tx, repo, order, res); err != nil {
				return err
			}
		}

		if res.Transitioned {
			if err := e.emitOrderPaid(ctx, tx, order, res.ReceiptStored || order.HasReceipt()); err != nil {
				return err
			}
		}

		reloaded, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		res.Order = reloaded
		return nil
	})
	elapsed := time.Since(started)
	if err != nil {
		e.metrics.Observe(metrics.OutcomeError, elapsed)
		return nil, err
	}

	outcome := metrics.OutcomeNoop
	if res.Transitioned {
		outcome = metrics.OutcomeTransitioned
	}
	e.metrics.Observe(outcome, elapsed)
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"transitioned":   res.Transitioned,
		"tickets_minted": res.TicketsMinted,
		"receipt_stored": res.ReceiptStored,
		"duration_ms":    elapsed.Milliseconds(),
	}), "order finalized")
	return res, nil
}

// mintTickets issues seq have+1..qty. The unique code index rejects any
// duplicate and aborts the transaction.
func (e *Engine) mintTickets(ctx context.Context, repo orders.Repository, order *models.Order) (int, error) {
	have, err := repo.CountTickets(ctx, order.ID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count tickets")
	}
	if int(have) >= order.Qty {
		return 0, nil
	}
	tickets := make([]models.Ticket, 0, order.Qty-int(have))
	for seq := int(have) + 1; seq <= order.Qty; seq++ {
		tickets = append(tickets, models.Ticket{OrderID: order.ID, Code: TicketCode(order.ID, seq)})
	}
	if err := repo.CreateTickets(ctx, tickets); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "mint tickets")
	}
	return len(tickets), nil
}

// attachReceipt renders and stores the receipt. Render failures are logged
// and reported in res; only storage failures abort.
func (e *Engine) attachReceipt(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, res *Result) error {
	event, err := e.catalog.WithTx(tx).FindEvent(ctx, order.EventID)
	if err != nil {
		e.receiptFailed(ctx, order, res, err)
		return nil
	}

	pdf, err := e.renderer.Render(receiptData(order, event, receipts.VerifyURL(e.baseURL, order.ID)))
	if err != nil {
		e.receiptFailed(ctx, order, res, err)
		return nil
	}

	rows, err := repo.SetReceipt(ctx, order.ID, pdf)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store receipt")
	}
	res.ReceiptStored = rows == 1
	return nil
}

func (e *Engine) receiptFailed(ctx context.Context, order *models.Order, res *Result, err error) {
	res.ReceiptFailed = true
	e.metrics.IncReceiptFailure()
	e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
		"event_id": order.EventID,
		"error":    err.Error(),
	}), "receipt render failed, order finalized without receipt")
}

func (e *Engine) emitOrderPaid(ctx context.Context, tx *gorm.DB, order *models.Order, receiptStored bool) error {
	paidAt := e.now()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}
	err := e.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   strconv.FormatUint(uint64(order.ID), 10),
		Data: payloads.OrderPaidEvent{
			OrderID:       order.ID,
			EventID:       order.EventID,
			Email:         order.Email,
			Qty:           order.Qty,
			TotalCents:    order.TotalCents,
			DonationCents: order.DonationCents,
			PaidAt:        paidAt,
			ReceiptStored: receiptStored,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid")
	}
	return nil
}

func receiptData(order *models.Order, event *models.Event, verifyURL string) receipts.ReceiptData {
	unit := int64(0)
	if order.Qty > 0 {
		unit = (order.TotalCents - order.DonationCents) / int64(order.Qty)
	}
	lines := make([]receipts.BeneficiaryLine, 0, len(event.Beneficiaries))
	for _, b := range event.Beneficiaries {
		name := ""
		if b.Charity != nil {
			name = b.Charity.Name
		}
		lines = append(lines, receipts.BeneficiaryLine{CharityName: name, Percent: b.AllocationPercent})
	}
	return receipts.ReceiptData{
		OrderID:        order.ID,
		Email:          order.Email,
		Qty:            order.Qty,
		UnitPriceCents: unit,
		DonationCents:  order.DonationCents,
		TotalCents:     order.TotalCents,
		OrderedAt:      order.CreatedAt,
		PaidAt:         order.PaidAt,
		EventTitle:     event.Title,
		EventStartsAt:  event.StartsAt,
		Venue:          event.Venue,
		Beneficiaries:  lines,
		VerifyURL:      verifyURL,
	}
}
