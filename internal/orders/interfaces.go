package orders

import (
	"context"
	"time"

	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their tickets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uint) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*models.Order, error)
	FindBySessionRef(ctx context.Context, sessionRef string) (*models.Order, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error)
	SetSessionRefs(ctx context.Context, orderID uint, sessionRef, paymentRef string) error
	SetPaymentRef(ctx context.Context, orderID uint, paymentRef string) (int64, error)
	MarkPaid(ctx context.Context, orderID uint, now time.Time) (int64, error)
	CountTickets(ctx context.Context, orderID uint) (int64, error)
	CreateTickets(ctx context.Context, tickets []models.Ticket) error
	ListTickets(ctx context.Context, orderID uint) ([]models.Ticket, error)
	SetReceipt(ctx context.Context, orderID uint, pdf []byte) (int64, error)
	FindStalePending(ctx context.Context, query StaleQuery) ([]models.Order, error)
	TouchReconcileChecked(ctx context.Context, orderID uint, at time.Time) error
}

// StaleQuery selects PENDING orders created inside [CreatedAfter, CreatedBefore).
// A zero CreatedAfter means no lower bound.
type StaleQuery struct {
	CreatedBefore time.Time
	CreatedAfter  time.Time
	Limit         int
}
