package catalog

import (
	"strings"
	"time"

	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
	"github.com/charityconnect/charityconnect-backend/pkg/money"
)

// EventInput is the authoring payload for create and update.
type EventInput struct {
	OrganiserID      *uint
	Title            string
	Description      string
	Venue            string
	StartsAt         time.Time
	TicketPriceCents int64
	Published        bool
	Beneficiaries    []AllocationInput
}

func (in EventInput) validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "title is required"
	} else if len(in.Title) > 200 {
		fields["title"] = "title must be at most 200 characters"
	}
	if in.StartsAt.IsZero() {
		fields["starts_at"] = "starts_at is required"
	}
	if in.TicketPriceCents < 0 {
		fields["ticket_price"] = "ticket price cannot be negative"
	} else if in.TicketPriceCents > money.MaxCents {
		fields["ticket_price"] = "ticket price is too large"
	}
	if len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid event").WithDetails(fields)
	}
	return nil
}

// EventView is the API shape of an event.
type EventView struct {
	ID               uint              `json:"id"`
	OrganiserID      uint              `json:"organiser_id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Venue            string            `json:"venue"`
	StartsAt         time.Time         `json:"starts_at"`
	TicketPriceCents int64             `json:"ticket_price_cents"`
	TicketPrice      string            `json:"ticket_price"`
	Published        bool              `json:"published"`
	Beneficiaries    []BeneficiaryView `json:"beneficiaries,omitempty"`
}

// BeneficiaryView is one allocation with the per-ticket estimated share.
type BeneficiaryView struct {
	CharityID               uint   `json:"charity_id"`
	CharityName             string `json:"charity_name"`
	Percent                 int    `json:"percent"`
	EstimatedCentsPerTicket int64  `json:"estimated_cents_per_ticket"`
	EstimatedPerTicket      string `json:"estimated_per_ticket,omitempty"`
}

type CharityView struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	CharityNumber string `json:"charity_number,omitempty"`
	Website       string `json:"website,omitempty"`
}

func toEventView(e *models.Event) EventView {
	return EventView{
		ID:               e.ID,
		OrganiserID:      e.OrganiserID,
		Title:            e.Title,
		Description:      e.Description,
		Venue:            e.Venue,
		StartsAt:         e.StartsAt,
		TicketPriceCents: e.TicketPriceCents,
		TicketPrice:      money.Format(e.TicketPriceCents),
		Published:        e.Published,
	}
}

// ApplyInput is a request to be listed as an organiser or charity.
type ApplyInput struct {
	OrgType       enums.OrgType
	Name          string
	Email         string
	Phone         string
	Website       string
	CharityNumber string
}

// VerificationItem is one organiser or charity in the review queue.
type VerificationItem struct {
	OrgType       enums.OrgType            `json:"org_type"`
	ID            uint                     `json:"id"`
	Name          string                   `json:"name"`
	ContactEmail  string                   `json:"contact_email"`
	CharityNumber string                   `json:"charity_number,omitempty"`
	Website       string                   `json:"website,omitempty"`
	Status        enums.VerificationStatus `json:"status"`
	Verified      bool                     `json:"verified"`
	CreatedAt     time.Time                `json:"created_at"`
}

// VerificationQueue lists both org kinds, pending first then id desc.
type VerificationQueue struct {
	Organisers []VerificationItem `json:"organisers"`
	Charities  []VerificationItem `json:"charities"`
}

func organiserItem(o *models.Organiser) VerificationItem {
	return VerificationItem{
		OrgType:      enums.OrgTypeOrganiser,
		ID:           o.ID,
		Name:         o.Name,
		ContactEmail: o.ContactEmail,
		Website:      deref(o.Website),
		Status:       o.Status,
		Verified:     o.Verified,
		CreatedAt:    o.CreatedAt,
	}
}

func charityItem(c *models.Charity) VerificationItem {
	return VerificationItem{
		OrgType:       enums.OrgTypeCharity,
		ID:            c.ID,
		Name:          c.Name,
		ContactEmail:  c.ContactEmail,
		CharityNumber: deref(c.CharityNumber),
		Website:       deref(c.Website),
		Status:        c.Status,
		Verified:      c.Verified,
		CreatedAt:     c.CreatedAt,
	}
}
