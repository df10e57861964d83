package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/charityconnect/charityconnect-backend/internal/finalize"
	"github.com/charityconnect/charityconnect-backend/internal/orders"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/stripe"
)

const (
	defaultStaleAfter      = 15 * time.Minute
	defaultReconcileBatch  = 100
	defaultReconcileMaxAge = 72 * time.Hour
)

type stalePendingOrders interface {
	ListStalePending(ctx context.Context, query orders.StaleQuery) ([]models.Order, error)
	StorePaymentRef(ctx context.Context, id uint, paymentRef string) error
	MarkReconcileChecked(ctx context.Context, id uint, at time.Time) error
}

type sessionChecker interface {
	RetrieveSession(ctx context.Context, sessionRef string) (*stripe.SessionStatus, error)
}

type PendingPaymentReconcileJobParams struct {
	Logger     *logger.Logger
	Orders     stalePendingOrders
	Gateway    sessionChecker
	Finalizer  finalize.Finalizer
	StaleAfter time.Duration
	// MaxAge stops re-checking abandoned checkouts once their gateway
	// session can no longer complete.
	MaxAge    time.Duration
	BatchSize int
	Now       func() time.Time
}

// NewPendingPaymentReconcileJob finalizes orders whose payment succeeded but
// whose return and webhook triggers both failed.
func NewPendingPaymentReconcileJob(params PendingPaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Finalizer == nil {
		return nil, fmt.Errorf("finalizer required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultReconcileMaxAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &pendingPaymentReconcileJob{
		logg:       params.Logger,
		orders:     params.Orders,
		gateway:    params.Gateway,
		finalizer:  params.Finalizer,
		staleAfter: staleAfter,
		maxAge:     maxAge,
		batch:      batch,
		now:        now,
	}, nil
}

type pendingPaymentReconcileJob struct {
	logg       *logger.Logger
	orders     stalePendingOrders
	gateway    sessionChecker
	finalizer  finalize.Finalizer
	staleAfter time.Duration
	maxAge     time.Duration
	batch      int
	now        func() time.Time
}

func (j *pendingPaymentReconcileJob) Name() string { return "pending-payment-reconcile" }

func (j *pendingPaymentReconcileJob) Run(ctx context.Context) error {
	now := j.now()
	cutoff := now.Add(-j.staleAfter)
	stale, err := j.orders.ListStalePending(ctx, orders.StaleQuery{
		CreatedBefore: cutoff,
		CreatedAfter:  now.Add(-j.maxAge),
		Limit:         j.batch,
	})
	if err != nil {
		return fmt.Errorf("list stale orders: %w", err)
	}

	var (
		errs      error
		finalized int
		unpaid    int
	)
	for i := range stale {
		order := &stale[i]
		if order.StripeSessionID == nil || *order.StripeSessionID == "" {
			continue
		}
		paid, err := j.reconcile(ctx, order)
		if markErr := j.orders.MarkReconcileChecked(ctx, order.ID, now); markErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %d: %w", order.ID, markErr))
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %d: %w", order.ID, err))
			continue
		}
		if paid {
			finalized++
		} else {
			unpaid++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"checked":   len(stale),
		"finalized": finalized,
		"unpaid":    unpaid,
		"failed":    len(multierr.Errors(errs)),
	}), "pending payment reconcile complete")
	return errs
}

func (j *pendingPaymentReconcileJob) reconcile(ctx context.Context, order *models.Order) (bool, error) {
	status, err := j.gateway.RetrieveSession(ctx, *order.StripeSessionID)
	if err != nil {
		return false, err
	}
	if !status.Paid {
		return false, nil
	}
	if err := j.orders.StorePaymentRef(ctx, order.ID, status.PaymentRef); err != nil {
		return false, err
	}
	if _, err := j.finalizer.Finalize(ctx, order.ID); err != nil {
		return false, err
	}
	return true, nil
}
