package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/charityconnect/charityconnect-backend/pkg/enums"
)

// Order is a ticket purchase plus optional donation. TotalCents is fixed at
// creation and never recomputed from the event's current price.
type Order struct {
	ID                  uint              `gorm:"column:id;primaryKey"`
	EventID             uint              `gorm:"column:event_id;not null;index"`
	Event               *Event            `gorm:"foreignKey:EventID;constraint:OnDelete:RESTRICT"`
	UserID              *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	Email               string            `gorm:"column:email;not null"`
	Qty                 int               `gorm:"column:qty;not null"`
	DonationCents       int64             `gorm:"column:donation_cents;not null;default:0"`
	TotalCents          int64             `gorm:"column:total_cents;not null"`
	Status              enums.OrderStatus `gorm:"column:status;not null;default:PENDING;index"`
	StripeSessionID     *string           `gorm:"column:stripe_session_id;uniqueIndex:ux_orders_stripe_session"`
	StripePaymentIntent *string           `gorm:"column:stripe_payment_intent;index"`
	ReceiptPDF          []byte            `gorm:"column:receipt_pdf"`
	ConsentCheckoutAt   *time.Time        `gorm:"column:consent_checkout_at"`
	ConsentIP           *string           `gorm:"column:consent_ip"`
	ConsentUA           *string           `gorm:"column:consent_ua"`
	PaidAt              *time.Time        `gorm:"column:paid_at"`
	ReconcileCheckedAt  *time.Time        `gorm:"column:reconcile_checked_at"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime"`
	Tickets             []Ticket          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

// IsPaid reports whether the order has been finalized.
func (o *Order) IsPaid() bool {
	return o != nil && o.Status == enums.OrderStatusPaid
}

// HasReceipt reports whether a receipt artifact is stored.
func (o *Order) HasReceipt() bool {
	return o != nil && len(o.ReceiptPDF) > 0
}

// Ticket is an admission issued only when its order is finalized.
type Ticket struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	OrderID   uint      `gorm:"column:order_id;not null;index"`
	Code      string    `gorm:"column:code;not null;uniqueIndex:ux_tickets_code"`
	Redeemed  bool      `gorm:"column:redeemed;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Ticket) TableName() string { return "tickets" }
