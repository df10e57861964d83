package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/charityconnect/charityconnect-backend/internal/audit"
	"github.com/charityconnect/charityconnect-backend/pkg/auth"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/money"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes event authoring, the public catalog and org verification.
type Service interface {
	CreateEvent(ctx context.Context, actor auth.Actor, input EventInput) (*EventView, error)
	UpdateEvent(ctx context.Context, actor auth.Actor, eventID uint, input EventInput) (*EventView, error)
	ReplaceBeneficiaries(ctx context.Context, actor auth.Actor, eventID uint, rows []AllocationInput) (*EventView, error)
	ListEvents(ctx context.Context, actor auth.Actor) ([]EventView, error)
	GetEvent(ctx context.Context, actor auth.Actor, eventID uint) (*EventView, error)
	LoadEvent(ctx context.Context, eventID uint) (*models.Event, error)
	ListVerifiedCharities(ctx context.Context) ([]CharityView, error)

	Apply(ctx context.Context, actor auth.Actor, input ApplyInput) (*VerificationItem, error)
	ListPendingVerifications(ctx context.Context, actor auth.Actor) (*VerificationQueue, error)
	SetVerification(ctx context.Context, actor auth.Actor, orgType enums.OrgType, id uint, action enums.VerificationAction) (*VerificationItem, error)
}

// ServiceParams groups the dependencies for NewService.
type ServiceParams struct {
	Repo   Repository
	TX     txRunner
	Outbox outbox.Emitter
	Audit  audit.Writer
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	audit  audit.Writer
	logg   *logger.Logger
}

// NewService builds the catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.TX == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit writer required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   params.Repo,
		tx:     params.TX,
		outbox: params.Outbox,
		audit:  params.Audit,
		logg:   logg,
	}, nil
}

func (s *service) CreateEvent(ctx context.Context, actor auth.Actor, input EventInput) (*EventView, error) {
	if !actor.CanAuthorEvents() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "organiser or admin role required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := s.checkAllocations(ctx, input.Beneficiaries); err != nil {
		return nil, err
	}

	var eventID uint
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		organiser, err := s.resolveOrganiser(ctx, repo, actor, input.OrganiserID)
		if err != nil {
			return err
		}
		event := &models.Event{
			OrganiserID:      organiser.ID,
			Title:            strings.TrimSpace(input.Title),
			Description:      strings.TrimSpace(input.Description),
			Venue:            strings.TrimSpace(input.Venue),
			StartsAt:         input.StartsAt,
			TicketPriceCents: input.TicketPriceCents,
			Published:        input.Published,
		}
		if _, err := repo.CreateEvent(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create event")
		}
		if err := repo.ReplaceBeneficiaries(ctx, event.ID, toRows(input.Beneficiaries)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert beneficiaries")
		}
		if err := s.auditEvent(ctx, tx, actor, "event.create", event.ID, input.Beneficiaries); err != nil {
			return err
		}
		if event.Published {
			if err := s.emitPublished(ctx, tx, actor, event); err != nil {
				return err
			}
		}
		eventID = event.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"event_id": eventID, "published": input.Published}), "event created")
	return s.GetEvent(ctx, actor, eventID)
}

func (s *service) UpdateEvent(ctx context.Context, actor auth.Actor, eventID uint, input EventInput) (*EventView, error) {
	if !actor.CanAuthorEvents() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "organiser or admin role required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := s.checkAllocations(ctx, input.Beneficiaries); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := s.ownedEvent(ctx, repo, actor, eventID)
		if err != nil {
			return err
		}
		updates := map[string]any{
			"title":              strings.TrimSpace(input.Title),
			"description":        strings.TrimSpace(input.Description),
			"venue":              strings.TrimSpace(input.Venue),
			"starts_at":          input.StartsAt,
			"ticket_price_cents": input.TicketPriceCents,
			"published":          input.Published,
		}
		if input.OrganiserID != nil && actor.CanVerify() {
			if _, err := repo.FindOrganiser(ctx, *input.OrganiserID); err != nil {
				return notFoundOr(err, "organiser not found", "lookup organiser")
			}
			updates["organiser_id"] = *input.OrganiserID
		}
		if err := repo.UpdateEvent(ctx, eventID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update event")
		}
		if err := repo.ReplaceBeneficiaries(ctx, eventID, toRows(input.Beneficiaries)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace beneficiaries")
		}
		if err := s.auditEvent(ctx, tx, actor, "event.update", eventID, input.Beneficiaries); err != nil {
			return err
		}
		if input.Published && !existing.Published {
			existing.Title = strings.TrimSpace(input.Title)
			existing.StartsAt = input.StartsAt
			return s.emitPublished(ctx, tx, actor, existing)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetEvent(ctx, actor, eventID)
}

func (s *service) ReplaceBeneficiaries(ctx context.Context, actor auth.Actor, eventID uint, rows []AllocationInput) (*EventView, error) {
	if !actor.CanAuthorEvents() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "organiser or admin role required")
	}
	if err := s.checkAllocations(ctx, rows); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.ownedEvent(ctx, repo, actor, eventID); err != nil {
			return err
		}
		if err := repo.ReplaceBeneficiaries(ctx, eventID, toRows(rows)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace beneficiaries")
		}
		return s.auditEvent(ctx, tx, actor, "event.beneficiaries.replace", eventID, rows)
	})
	if err != nil {
		return nil, err
	}
	return s.GetEvent(ctx, actor, eventID)
}

func (s *service) ListEvents(ctx context.Context, actor auth.Actor) ([]EventView, error) {
	events, err := s.repo.ListEvents(ctx, actor.CanSeeUnpublished())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list events")
	}
	out := make([]EventView, 0, len(events))
	for i := range events {
		out = append(out, toEventView(&events[i]))
	}
	return out, nil
}

func (s *service) GetEvent(ctx context.Context, actor auth.Actor, eventID uint) (*EventView, error) {
	event, err := s.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.Published && !actor.CanSeeUnpublished() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	view := toEventView(event)
	view.Beneficiaries = beneficiaryViews(event)
	return &view, nil
}

// LoadEvent returns the event with beneficiaries regardless of visibility.
func (s *service) LoadEvent(ctx context.Context, eventID uint) (*models.Event, error) {
	event, err := s.repo.FindEvent(ctx, eventID)
	if err != nil {
		return nil, notFoundOr(err, "event not found", "lookup event")
	}
	return event, nil
}

func (s *service) ListVerifiedCharities(ctx context.Context) ([]CharityView, error) {
	rows, err := s.repo.ListVerifiedCharities(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list charities")
	}
	out := make([]CharityView, 0, len(rows))
	for _, row := range rows {
		out = append(out, CharityView{
			ID:            row.ID,
			Name:          row.Name,
			CharityNumber: deref(row.CharityNumber),
			Website:       deref(row.Website),
		})
	}
	return out, nil
}

func (s *service) checkAllocations(ctx context.Context, rows []AllocationInput) error {
	verified, err := s.repo.VerifiedCharities(ctx, charityIDs(rows))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup charities")
	}
	return ValidateAllocations(rows, verified)
}

// resolveOrganiser picks the owning organiser. Organisers always author as
// their own verified profile. Admins may name one or default to the first.
func (s *service) resolveOrganiser(ctx context.Context, repo Repository, actor auth.Actor, requested *uint) (*models.Organiser, error) {
	if actor.CanVerify() {
		if requested != nil {
			organiser, err := repo.FindOrganiser(ctx, *requested)
			if err != nil {
				return nil, notFoundOr(err, "organiser not found", "lookup organiser")
			}
			return organiser, nil
		}
		organiser, err := repo.FirstOrganiser(ctx)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "organiser_id is required").
					WithDetails(map[string]string{"organiser_id": "no organiser exists yet"})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup organiser")
		}
		return organiser, nil
	}

	organiser, err := repo.FindOrganiserByUser(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "organiser profile required")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup organiser")
	}
	if !organiser.Verified {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "organiser is not verified")
	}
	return organiser, nil
}

func (s *service) ownedEvent(ctx context.Context, repo Repository, actor auth.Actor, eventID uint) (*models.Event, error) {
	event, err := repo.FindEvent(ctx, eventID)
	if err != nil {
		return nil, notFoundOr(err, "event not found", "lookup event")
	}
	if actor.CanVerify() {
		return event, nil
	}
	organiser, err := s.resolveOrganiser(ctx, repo, actor, nil)
	if err != nil {
		return nil, err
	}
	if organiser.ID != event.OrganiserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "event belongs to another organiser")
	}
	return event, nil
}

func (s *service) auditEvent(ctx context.Context, tx *gorm.DB, actor auth.Actor, action string, eventID uint, rows []AllocationInput) error {
	err := s.audit.Record(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: string(enums.AggregateEvent),
		EntityID:   strconv.FormatUint(uint64(eventID), 10),
		Meta:       map[string]any{"beneficiaries": rows},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
	}
	return nil
}

func (s *service) emitPublished(ctx context.Context, tx *gorm.DB, actor auth.Actor, event *models.Event) error {
	err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEventPublished,
		AggregateType: enums.AggregateEvent,
		AggregateID:   strconv.FormatUint(uint64(event.ID), 10),
		Actor:         actorRef(actor),
		Data: payloads.EventPublishedEvent{
			EventID:     event.ID,
			OrganiserID: event.OrganiserID,
			Title:       event.Title,
			StartsAt:    event.StartsAt,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit event published")
	}
	return nil
}

func toRows(inputs []AllocationInput) []models.EventBeneficiary {
	rows := make([]models.EventBeneficiary, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, models.EventBeneficiary{
			CharityID:         in.CharityID,
			AllocationPercent: in.Percent,
		})
	}
	return rows
}

func beneficiaryViews(event *models.Event) []BeneficiaryView {
	views := make([]BeneficiaryView, 0, len(event.Beneficiaries))
	percents := make([]int, 0, len(event.Beneficiaries))
	for _, b := range event.Beneficiaries {
		name := ""
		if b.Charity != nil {
			name = b.Charity.Name
		}
		views = append(views, BeneficiaryView{
			CharityID:   b.CharityID,
			CharityName: name,
			Percent:     b.AllocationPercent,
		})
		percents = append(percents, b.AllocationPercent)
	}
	if shares, err := money.Allocate(event.TicketPriceCents, percents); err == nil {
		for i := range views {
			views[i].EstimatedCentsPerTicket = shares[i]
			views[i].EstimatedPerTicket = money.Format(shares[i])
		}
	}
	return views
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	if !actor.IsAuthenticated() {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func notFoundOr(err error, notFound, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
