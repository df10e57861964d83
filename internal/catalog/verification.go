package catalog

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/charityconnect/charityconnect-backend/internal/audit"
	"github.com/charityconnect/charityconnect-backend/pkg/auth"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox/payloads"
)

func (s *service) Apply(ctx context.Context, actor auth.Actor, input ApplyInput) (*VerificationItem, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to apply")
	}
	fields := map[string]string{}
	if !input.OrgType.IsValid() {
		fields["org_type"] = "org_type must be organiser or charity"
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		fields["name"] = "name is required"
	}
	email := strings.TrimSpace(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "a valid email is required"
	}
	if len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid application").WithDetails(fields)
	}

	switch input.OrgType {
	case enums.OrgTypeCharity:
		charity := &models.Charity{
			Name:          name,
			CharityNumber: optional(input.CharityNumber),
			ContactEmail:  email,
			Website:       optional(input.Website),
			Status:        enums.VerificationPending,
		}
		if _, err := s.repo.CreateCharity(ctx, charity); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create charity application")
		}
		item := charityItem(charity)
		return &item, nil
	default:
		organiser := &models.Organiser{
			UserID:       actor.UserRef(),
			Name:         name,
			ContactEmail: email,
			Phone:        optional(input.Phone),
			Website:      optional(input.Website),
			Status:       enums.VerificationPending,
		}
		if _, err := s.repo.CreateOrganiser(ctx, organiser); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create organiser application")
		}
		item := organiserItem(organiser)
		return &item, nil
	}
}

func (s *service) ListPendingVerifications(ctx context.Context, actor auth.Actor) (*VerificationQueue, error) {
	if !actor.CanVerify() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	organisers, err := s.repo.ListOrganisers(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list organisers")
	}
	charities, err := s.repo.ListCharities(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list charities")
	}

	queue := &VerificationQueue{
		Organisers: make([]VerificationItem, 0, len(organisers)),
		Charities:  make([]VerificationItem, 0, len(charities)),
	}
	for i := range organisers {
		queue.Organisers = append(queue.Organisers, organiserItem(&organisers[i]))
	}
	for i := range charities {
		queue.Charities = append(queue.Charities, charityItem(&charities[i]))
	}
	sortQueue(queue.Organisers)
	sortQueue(queue.Charities)
	return queue, nil
}

func sortQueue(items []VerificationItem) {
	sort.SliceStable(items, func(a, b int) bool {
		ra, rb := items[a].Status.SortRank(), items[b].Status.SortRank()
		if ra != rb {
			return ra < rb
		}
		return items[a].ID > items[b].ID
	})
}

func (s *service) SetVerification(ctx context.Context, actor auth.Actor, orgType enums.OrgType, id uint, action enums.VerificationAction) (*VerificationItem, error) {
	if !actor.CanVerify() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !orgType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown organisation type")
	}
	if _, err := enums.ParseVerificationAction(string(action)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown verification action")
	}
	status, verified := action.Target()

	var item VerificationItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.SetVerification(ctx, orgType, id, status, verified)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update verification")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s not found", orgType))
		}

		if orgType == enums.OrgTypeCharity {
			charity, err := repo.FindCharity(ctx, id)
			if err != nil {
				return notFoundOr(err, "charity not found", "reload charity")
			}
			item = charityItem(charity)
		} else {
			organiser, err := repo.FindOrganiser(ctx, id)
			if err != nil {
				return notFoundOr(err, "organiser not found", "reload organiser")
			}
			item = organiserItem(organiser)
		}

		idStr := strconv.FormatUint(uint64(id), 10)
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     "verification." + string(action),
			EntityType: string(orgType),
			EntityID:   idStr,
			Meta:       map[string]any{"status": status, "verified": verified},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}

		aggregate := enums.AggregateOrganiser
		if orgType == enums.OrgTypeCharity {
			aggregate = enums.AggregateCharity
		}
		// Each decision is its own aggregate key so repeated decisions all publish.
		decisionKey := idStr + ":" + uuid.NewString()
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVerificationDecision,
			AggregateType: aggregate,
			AggregateID:   decisionKey,
			Actor:         actorRef(actor),
			Data: payloads.VerificationDecidedEvent{
				OrgType:  orgType,
				OrgID:    id,
				Action:   action,
				Status:   status,
				Verified: verified,
				AdminID:  actor.UserID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit verification decision")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
