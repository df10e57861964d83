package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/charityconnect/charityconnect-backend/internal/finalize"
	"github.com/charityconnect/charityconnect-backend/internal/orders"
	"github.com/charityconnect/charityconnect-backend/pkg/db/dbtest"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/stripe"
)

type fakeStaleOrders struct {
	orders     []models.Order
	query      orders.StaleQuery
	paymentRef map[uint]string
	checked    []uint
}

func (f *fakeStaleOrders) ListStalePending(ctx context.Context, query orders.StaleQuery) ([]models.Order, error) {
	f.query = query
	return f.orders, nil
}

func (f *fakeStaleOrders) MarkReconcileChecked(ctx context.Context, id uint, at time.Time) error {
	f.checked = append(f.checked, id)
	return nil
}

func (f *fakeStaleOrders) StorePaymentRef(ctx context.Context, id uint, ref string) error {
	f.paymentRef[id] = ref
	return nil
}

type fakeSessions map[string]*stripe.SessionStatus

func (f fakeSessions) RetrieveSession(ctx context.Context, ref string) (*stripe.SessionStatus, error) {
	status, ok := f[ref]
	if !ok {
		return nil, errors.New("gateway timeout")
	}
	return status, nil
}

type recordingFinalizer struct {
	calls []uint
}

func (r *recordingFinalizer) Finalize(ctx context.Context, orderID uint) (*finalize.Result, error) {
	r.calls = append(r.calls, orderID)
	return &finalize.Result{Transitioned: true}, nil
}

func session(ref string) *string { return &ref }

func TestPendingPaymentReconcileFinalizesPaidSessions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	stale := &fakeStaleOrders{
		orders: []models.Order{
			{ID: 1, StripeSessionID: session("cs_paid")},
			{ID: 2, StripeSessionID: session("cs_open")},
			{ID: 3, StripeSessionID: session("cs_broken")},
			{ID: 4},
		},
		paymentRef: map[uint]string{},
	}
	finalizer := &recordingFinalizer{}
	job, err := NewPendingPaymentReconcileJob(PendingPaymentReconcileJobParams{
		Logger: logger.Nop(),
		Orders: stale,
		Gateway: fakeSessions{
			"cs_paid": {Paid: true, PaymentRef: "pi_paid"},
			"cs_open": {PaymentStatus: "unpaid"},
		},
		Finalizer:  finalizer,
		StaleAfter: 20 * time.Minute,
		MaxAge:     24 * time.Hour,
		BatchSize:  50,
		Now:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	err = job.Run(context.Background())
	if got := len(multierr.Errors(err)); got != 1 {
		t.Fatalf("expected one aggregated error, got %d (%v)", got, err)
	}
	if want := now.Add(-20 * time.Minute); !stale.query.CreatedBefore.Equal(want) || stale.query.Limit != 50 {
		t.Fatalf("unexpected query %+v", stale.query)
	}
	if want := now.Add(-24 * time.Hour); !stale.query.CreatedAfter.Equal(want) {
		t.Fatalf("unexpected lower bound %s", stale.query.CreatedAfter)
	}
	if len(stale.checked) != 3 {
		t.Fatalf("expected the three sessions stamped as checked, got %v", stale.checked)
	}
	if len(finalizer.calls) != 1 || finalizer.calls[0] != 1 {
		t.Fatalf("expected only order 1 finalized, got %v", finalizer.calls)
	}
	if stale.paymentRef[1] != "pi_paid" {
		t.Fatalf("payment ref not stored: %v", stale.paymentRef)
	}
}

func TestPendingPaymentReconcileRequiresDependencies(t *testing.T) {
	if _, err := NewPendingPaymentReconcileJob(PendingPaymentReconcileJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPendingPaymentReconcileReachesPaidOrderBehindAbandonedBacklog(t *testing.T) {
	client := dbtest.New(t)
	conn := client.DB()
	ctx := context.Background()
	base := time.Now()

	organiser := &models.Organiser{Name: "Gala Org", ContactEmail: "org@example.com", Status: enums.VerificationVerified, Verified: true}
	if err := conn.Create(organiser).Error; err != nil {
		t.Fatalf("seed organiser: %v", err)
	}
	event := &models.Event{OrganiserID: organiser.ID, Title: "Gala", StartsAt: base.Add(72 * time.Hour), TicketPriceCents: 5000, Published: true}
	if err := conn.Create(event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}

	repo := orders.NewRepository(conn)
	sessions := fakeSessions{}
	seed := func(ref string, age time.Duration, paid bool) uint {
		order, err := repo.Create(ctx, &models.Order{
			EventID:    event.ID,
			Email:      "donor@example.com",
			Qty:        1,
			TotalCents: 5000,
			Status:     enums.OrderStatusPending,
			CreatedAt:  base.Add(-age),
		})
		if err != nil {
			t.Fatalf("seed order: %v", err)
		}
		if err := repo.SetSessionRefs(ctx, order.ID, ref, ""); err != nil {
			t.Fatalf("attach session: %v", err)
		}
		if paid {
			sessions[ref] = &stripe.SessionStatus{Paid: true, PaymentRef: "pi_" + ref}
		} else {
			sessions[ref] = &stripe.SessionStatus{PaymentStatus: "unpaid"}
		}
		return order.ID
	}

	expired := seed("cs_expired", 10*24*time.Hour, false)
	for _, ref := range []string{"cs_a", "cs_b", "cs_c", "cs_d"} {
		seed(ref, time.Hour, false)
	}
	paidID := seed("cs_paid", time.Hour, true)

	svc, err := orders.NewService(orders.ServiceParams{Repo: repo, DB: client})
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	finalizer := &recordingFinalizer{}
	run := 0
	job, err := NewPendingPaymentReconcileJob(PendingPaymentReconcileJobParams{
		Logger:    logger.Nop(),
		Orders:    svc,
		Gateway:   sessions,
		Finalizer: finalizer,
		MaxAge:    72 * time.Hour,
		BatchSize: 2,
		Now:       func() time.Time { return base.Add(time.Duration(run) * time.Minute) },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	for ; run < 3; run++ {
		if err := job.Run(ctx); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
	}
	if len(finalizer.calls) != 1 || finalizer.calls[0] != paidID {
		t.Fatalf("expected paid order %d finalized, got %v", paidID, finalizer.calls)
	}

	var stamped models.Order
	if err := conn.First(&stamped, expired).Error; err != nil {
		t.Fatalf("load expired order: %v", err)
	}
	if stamped.ReconcileCheckedAt != nil {
		t.Fatal("order past max age should not be re-checked")
	}
}
