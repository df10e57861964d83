package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/charityconnect/charityconnect-backend/pkg/enums"
)

// OrderPaidEvent is emitted once, by the finalization that moved an order to PAID.
type OrderPaidEvent struct {
	OrderID       uint      `json:"order_id"`
	EventID       uint      `json:"event_id"`
	Email         string    `json:"email"`
	Qty           int       `json:"qty"`
	TotalCents    int64     `json:"total_cents"`
	DonationCents int64     `json:"donation_cents"`
	PaidAt        time.Time `json:"paid_at"`
	ReceiptStored bool      `json:"receipt_stored"`
}

// EventPublishedEvent is emitted when an organiser publishes an event.
type EventPublishedEvent struct {
	EventID     uint      `json:"event_id"`
	OrganiserID uint      `json:"organiser_id"`
	Title       string    `json:"title"`
	StartsAt    time.Time `json:"starts_at"`
}

// VerificationDecidedEvent records an admin verification action.
type VerificationDecidedEvent struct {
	OrgType  enums.OrgType            `json:"org_type"`
	OrgID    uint                     `json:"org_id"`
	Action   enums.VerificationAction `json:"action"`
	Status   enums.VerificationStatus `json:"status"`
	Verified bool                     `json:"verified"`
	AdminID  uuid.UUID                `json:"admin_id"`
}
