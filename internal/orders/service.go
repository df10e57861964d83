package orders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	dbpkg "github.com/charityconnect/charityconnect-backend/pkg/db"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/money"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultMaxQuantity caps tickets per order when no limit is configured.
const DefaultMaxQuantity = 10

type retrier interface {
	RetryTransient(ctx context.Context, fn func(db *gorm.DB) error) error
}

// Service is the order ledger used by checkout, finalization and the API.
type Service interface {
	CreatePending(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, id uint) (*models.Order, error)
	Tickets(ctx context.Context, id uint) ([]models.Ticket, error)
	IsPaid(ctx context.Context, id uint) (bool, error)
	Receipt(ctx context.Context, id uint) ([]byte, string, error)
	LocateForPayment(ctx context.Context, clientRef, sessionRef, paymentRef string) (*models.Order, error)
	AttachSession(ctx context.Context, id uint, sessionRef, paymentRef string) error
	StorePaymentRef(ctx context.Context, id uint, paymentRef string) error
	ListStalePending(ctx context.Context, query StaleQuery) ([]models.Order, error)
	MarkReconcileChecked(ctx context.Context, id uint, at time.Time) error
}

// Consent records when and from where the purchaser agreed to checkout terms.
type Consent struct {
	At        time.Time
	IP        string
	UserAgent string
}

// CreateOrderInput carries everything needed to open a PENDING order.
type CreateOrderInput struct {
	Event         *models.Event
	Email         string
	Qty           int
	DonationCents int64
	UserID        *uuid.UUID
	Consent       *Consent
}

// ServiceParams groups the dependencies for NewService.
type ServiceParams struct {
	Repo        Repository
	DB          retrier
	MaxQuantity int
	Now         func() time.Time
}

type service struct {
	repo   Repository
	db     retrier
	maxQty int
	now    func() time.Time
}

// NewService builds the order ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	maxQty := params.MaxQuantity
	if maxQty <= 0 {
		maxQty = DefaultMaxQuantity
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		db:     params.DB,
		maxQty: maxQty,
		now:    now,
	}, nil
}

func (s *service) CreatePending(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.Event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	if !input.Event.Published {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}

	fields := map[string]string{}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		fields["email"] = "email is required"
	} else if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "email is invalid"
	}
	if input.Qty < 1 || input.Qty > s.maxQty {
		fields["qty"] = fmt.Sprintf("qty must be between 1 and %d", s.maxQty)
	}
	if input.DonationCents < 0 {
		fields["donation"] = "donation cannot be negative"
	} else if input.DonationCents > money.MaxCents {
		fields["donation"] = "donation is too large"
	}
	if len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order").WithDetails(fields)
	}

	order := &models.Order{
		EventID:       input.Event.ID,
		UserID:        input.UserID,
		Email:         email,
		Qty:           input.Qty,
		DonationCents: input.DonationCents,
		TotalCents:    input.Event.TicketPriceCents*int64(input.Qty) + input.DonationCents,
		Status:        enums.OrderStatusPending,
	}
	if c := input.Consent; c != nil {
		at := c.At
		if at.IsZero() {
			at = s.now()
		}
		order.ConsentCheckoutAt = &at
		order.ConsentIP = optional(c.IP)
		order.ConsentUA = optional(c.UserAgent)
	}

	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return nil, classify(err, "create order")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uint) (*models.Order, error) {
	var order *models.Order
	err := s.read(ctx, func(repo Repository) error {
		found, err := repo.FindByID(ctx, id)
		order = found
		return err
	})
	if err != nil {
		return nil, classify(err, "load order")
	}
	return order, nil
}

func (s *service) Tickets(ctx context.Context, id uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.read(ctx, func(repo Repository) error {
		found, err := repo.ListTickets(ctx, id)
		tickets = found
		return err
	})
	if err != nil {
		return nil, classify(err, "list tickets")
	}
	return tickets, nil
}

func (s *service) IsPaid(ctx context.Context, id uint) (bool, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return order.IsPaid(), nil
}

// Receipt returns the stored artifact and its download filename.
func (s *service) Receipt(ctx context.Context, id uint) ([]byte, string, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !order.HasReceipt() {
		return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "receipt not available")
	}
	return order.ReceiptPDF, ReceiptFilename(order.ID), nil
}

// ReceiptFilename is the attachment name used for downloads and email.
func ReceiptFilename(orderID uint) string {
	return fmt.Sprintf("receipt_%d.pdf", orderID)
}

// LocateForPayment resolves a gateway notification to an order, trying the
// client reference, then the session ref, then the payment ref. It returns
// nil, nil when nothing matches.
func (s *service) LocateForPayment(ctx context.Context, clientRef, sessionRef, paymentRef string) (*models.Order, error) {
	lookups := make([]func(Repository) (*models.Order, error), 0, 3)
	if id, err := strconv.ParseUint(strings.TrimSpace(clientRef), 10, 64); err == nil && id > 0 {
		lookups = append(lookups, func(repo Repository) (*models.Order, error) {
			return repo.FindByID(ctx, uint(id))
		})
	}
	if sessionRef != "" {
		lookups = append(lookups, func(repo Repository) (*models.Order, error) {
			return repo.FindBySessionRef(ctx, sessionRef)
		})
	}
	if paymentRef != "" {
		lookups = append(lookups, func(repo Repository) (*models.Order, error) {
			return repo.FindByPaymentRef(ctx, paymentRef)
		})
	}

	for _, lookup := range lookups {
		var order *models.Order
		err := s.read(ctx, func(repo Repository) error {
			found, err := lookup(repo)
			order = found
			return err
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, classify(err, "locate order")
		}
		return order, nil
	}
	return nil, nil
}

func (s *service) AttachSession(ctx context.Context, id uint, sessionRef, paymentRef string) error {
	if err := s.repo.SetSessionRefs(ctx, id, sessionRef, paymentRef); err != nil {
		return classify(err, "store session refs")
	}
	return nil
}

func (s *service) StorePaymentRef(ctx context.Context, id uint, paymentRef string) error {
	if _, err := s.repo.SetPaymentRef(ctx, id, paymentRef); err != nil {
		return classify(err, "store payment ref")
	}
	return nil
}

func (s *service) ListStalePending(ctx context.Context, query StaleQuery) ([]models.Order, error) {
	var orders []models.Order
	err := s.read(ctx, func(repo Repository) error {
		found, err := repo.FindStalePending(ctx, query)
		orders = found
		return err
	})
	if err != nil {
		return nil, classify(err, "list stale orders")
	}
	return orders, nil
}

func (s *service) MarkReconcileChecked(ctx context.Context, id uint, at time.Time) error {
	if err := s.repo.TouchReconcileChecked(ctx, id, at); err != nil {
		return classify(err, "mark reconcile checked")
	}
	return nil
}

func (s *service) read(ctx context.Context, fn func(repo Repository) error) error {
	return s.db.RetryTransient(ctx, func(conn *gorm.DB) error {
		return fn(s.repo.WithTx(conn))
	})
}

func classify(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.As(err) != nil:
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	case dbpkg.IsTransient(err):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order storage unavailable")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
