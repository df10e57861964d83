// Package notifications emails purchasers once their order is paid.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/charityconnect/charityconnect-backend/internal/orders"
	"github.com/charityconnect/charityconnect-backend/internal/receipts"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/mailer"
	"github.com/charityconnect/charityconnect-backend/pkg/money"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox/payloads"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox/registry"
)

const receiptEmailConsumer = "receipt-email"

// ReceiptSubject is the subject line of the purchase confirmation.
const ReceiptSubject = "Your CharityConnect receipt"

type orderReader interface {
	Get(ctx context.Context, id uint) (*models.Order, error)
}

type eventReader interface {
	LoadEvent(ctx context.Context, eventID uint) (*models.Event, error)
}

type processedGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// ConsumerParams groups the dependencies for NewConsumer.
type ConsumerParams struct {
	Subscription  *pubsub.Subscriber
	Orders        orderReader
	Events        eventReader
	Mailer        mailer.Sender
	Idempotency   processedGuard
	Decoders      *registry.DecoderRegistry
	Logger        *logger.Logger
	PublicBaseURL string
}

// Consumer turns order_paid events into receipt emails.
type Consumer struct {
	subscription *pubsub.Subscriber
	orders       orderReader
	events       eventReader
	mailer       mailer.Sender
	idempotency  processedGuard
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
	baseURL      string
}

// NewConsumer builds the receipt email consumer. Subscription may be nil
// when only process is exercised.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event reader required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	decoders := params.Decoders
	if decoders == nil {
		decoders = registry.DefaultDecoders()
	}
	return &Consumer{
		subscription: params.Subscription,
		orders:       params.Orders,
		events:       params.Events,
		mailer:       params.Mailer,
		idempotency:  params.Idempotency,
		decoders:     decoders,
		logg:         params.Logger,
		baseURL:      params.PublicBaseURL,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("notification subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventOrderPaid) {
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	decoded, err := c.decoders.Decode(enums.EventOrderPaid, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}
	payload, ok := decoded.(*payloads.OrderPaidEvent)
	if !ok || payload.OrderID == 0 {
		c.logg.Warn(logCtx, "order paid payload missing order id")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithOrderID(logCtx, payload.OrderID)

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, receiptEmailConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "receipt email already sent")
		return processResult{ack: true}
	}

	if err := c.sendReceipt(logCtx, payload); err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "order paid event references missing data")
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "receipt email failed", err)
		if delErr := c.idempotency.Delete(ctx, receiptEmailConsumer, eventID); delErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", delErr.Error()), "release receipt email idempotency key")
		}
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *Consumer) sendReceipt(ctx context.Context, payload *payloads.OrderPaidEvent) error {
	order, err := c.orders.Get(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	event, err := c.events.LoadEvent(ctx, order.EventID)
	if err != nil {
		return err
	}
	msg := ReceiptEmail(order, event, receipts.VerifyURL(c.baseURL, order.ID))
	if err := c.mailer.Send(ctx, msg); err != nil {
		return err
	}
	c.logg.Info(c.logg.WithField(ctx, "attachments", len(msg.Attachments)), "receipt email sent")
	return nil
}

// ImpactLine is one charity's share of an order.
type ImpactLine struct {
	CharityName string
	Percent     int
	AmountCents int64
}

// Impact splits the order total across the event's beneficiaries. It returns
// nil when the allocation does not balance.
func Impact(order *models.Order, event *models.Event) []ImpactLine {
	if order == nil || event == nil || len(event.Beneficiaries) == 0 {
		return nil
	}
	percents := make([]int, len(event.Beneficiaries))
	for i, b := range event.Beneficiaries {
		percents[i] = b.AllocationPercent
	}
	shares, err := money.Allocate(order.TotalCents, percents)
	if err != nil {
		return nil
	}
	lines := make([]ImpactLine, 0, len(shares))
	for i, b := range event.Beneficiaries {
		name := fmt.Sprintf("Charity #%d", b.CharityID)
		if b.Charity != nil {
			name = b.Charity.Name
		}
		lines = append(lines, ImpactLine{CharityName: name, Percent: b.AllocationPercent, AmountCents: shares[i]})
	}
	return lines
}

// ReceiptEmail composes the confirmation. The stored receipt is attached when
// present.
func ReceiptEmail(order *models.Order, event *models.Event, verifyURL string) mailer.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order #%d for %s.\n\n", order.ID, event.Title)
	fmt.Fprintf(&b, "Tickets: %d\n", order.Qty)
	if order.DonationCents > 0 {
		fmt.Fprintf(&b, "Donation: %s\n", money.Format(order.DonationCents))
	}
	fmt.Fprintf(&b, "Total paid: %s\n", money.Format(order.TotalCents))

	if impact := Impact(order, event); len(impact) > 0 {
		b.WriteString("\nYour impact:\n")
		for _, line := range impact {
			fmt.Fprintf(&b, "- %s (%d%%): %s\n", line.CharityName, line.Percent, money.Format(line.AmountCents))
		}
	}
	if verifyURL != "" {
		fmt.Fprintf(&b, "\nVerify your receipt: %s\n", verifyURL)
	}
	if !order.HasReceipt() {
		b.WriteString("\nYour PDF receipt is being prepared and will be available to download shortly.\n")
	}

	msg := mailer.Message{
		To:      order.Email,
		Subject: ReceiptSubject,
		Body:    b.String(),
	}
	if order.HasReceipt() {
		msg.Attachments = []mailer.Attachment{{
			Name:        orders.ReceiptFilename(order.ID),
			ContentType: "application/pdf",
			Data:        order.ReceiptPDF,
		}}
	}
	return msg
}
