package orders

import (
	"context"
	"time"

	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an order repository backed by the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
// sqlite has no row locks; its single writer already serializes callers.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uint) (*models.Order, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.first(q.Where("id = ?", id))
}

func (r *repository) FindBySessionRef(ctx context.Context, sessionRef string) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("stripe_session_id = ?", sessionRef))
}

func (r *repository) FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("stripe_payment_intent = ?", paymentRef).Order("id ASC"))
}

func (r *repository) first(q *gorm.DB) (*models.Order, error) {
	var order models.Order
	if err := q.First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) SetSessionRefs(ctx context.Context, orderID uint, sessionRef, paymentRef string) error {
	updates := map[string]any{"stripe_session_id": sessionRef}
	if paymentRef != "" {
		updates["stripe_payment_intent"] = paymentRef
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

// SetPaymentRef writes the ref only when it is missing or different.
func (r *repository) SetPaymentRef(ctx context.Context, orderID uint, paymentRef string) (int64, error) {
	if paymentRef == "" {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND (stripe_payment_intent IS NULL OR stripe_payment_intent <> ?)", orderID, paymentRef).
		Update("stripe_payment_intent", paymentRef)
	return res.RowsAffected, res.Error
}

// MarkPaid moves a PENDING order to PAID. Zero rows affected means another
// caller already did.
func (r *repository) MarkPaid(ctx context.Context, orderID uint, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":  enums.OrderStatusPaid,
			"paid_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CountTickets(ctx context.Context, orderID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}

func (r *repository) CreateTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&tickets).Error
}

func (r *repository) ListTickets(ctx context.Context, orderID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// SetReceipt stores the artifact unless one is already present.
func (r *repository) SetReceipt(ctx context.Context, orderID uint, pdf []byte) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND receipt_pdf IS NULL", orderID).
		Update("receipt_pdf", pdf)
	return res.RowsAffected, res.Error
}

// FindStalePending returns PENDING orders with an open gateway session inside
// the query window. Orders never reconciled come first, then the ones checked
// longest ago, so a batch limit rotates through the backlog.
func (r *repository) FindStalePending(ctx context.Context, query StaleQuery) ([]models.Order, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ? AND stripe_session_id IS NOT NULL", enums.OrderStatusPending, query.CreatedBefore)
	if !query.CreatedAfter.IsZero() {
		q = q.Where("created_at >= ?", query.CreatedAfter)
	}
	q = q.Order("reconcile_checked_at IS NOT NULL").
		Order("reconcile_checked_at ASC").
		Order("id ASC")
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) TouchReconcileChecked(ctx context.Context, orderID uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("reconcile_checked_at", at).Error
}
