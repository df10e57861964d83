package catalog

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
)

type seedEvent struct {
	title       string
	description string
	venue       string
	offset      time.Duration
	priceCents  int64
	allocations []seedAllocation
}

type seedAllocation struct {
	charity string
	percent int
}

var seedCharities = []string{"Irish Cancer Society", "Pieta", "Focus Ireland"}

var seedEvents = []seedEvent{
	{
		title:       "Christmas Charity Gala",
		description: "An evening of dinner and music in aid of cancer care and suicide prevention.",
		venue:       "The Round Room, Dublin",
		offset:      30 * 24 * time.Hour,
		priceCents:  5000,
		allocations: []seedAllocation{{"Irish Cancer Society", 60}, {"Pieta", 40}},
	},
	{
		title:       "Community 5K Fun Run",
		description: "A family friendly 5K around the park. All proceeds support homeless services.",
		venue:       "Phoenix Park, Dublin",
		offset:      45 * 24 * time.Hour,
		priceCents:  2000,
		allocations: []seedAllocation{{"Focus Ireland", 100}},
	},
}

// Seed inserts demo catalog data. It does nothing and returns false when any
// event already exists.
func Seed(ctx context.Context, tx txRunner, repo Repository, now time.Time) (bool, error) {
	count, err := repo.CountEvents(ctx)
	if err != nil {
		return false, fmt.Errorf("count events: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	err = tx.WithTx(ctx, func(db *gorm.DB) error {
		r := repo.WithTx(db)
		organiser := &models.Organiser{
			Name:         "CharityConnect Events",
			ContactEmail: "events@charityconnect.ie",
			Status:       enums.VerificationVerified,
			Verified:     true,
		}
		if _, err := r.CreateOrganiser(ctx, organiser); err != nil {
			return fmt.Errorf("seed organiser: %w", err)
		}

		charityIDs := make(map[string]uint, len(seedCharities))
		for _, name := range seedCharities {
			charity := &models.Charity{
				Name:         name,
				ContactEmail: "info@" + slug(name) + ".ie",
				Status:       enums.VerificationVerified,
				Verified:     true,
			}
			if _, err := r.CreateCharity(ctx, charity); err != nil {
				return fmt.Errorf("seed charity %s: %w", name, err)
			}
			charityIDs[name] = charity.ID
		}

		for _, se := range seedEvents {
			event := &models.Event{
				OrganiserID:      organiser.ID,
				Title:            se.title,
				Description:      se.description,
				Venue:            se.venue,
				StartsAt:         now.Add(se.offset).Truncate(time.Hour),
				TicketPriceCents: se.priceCents,
				Published:        true,
			}
			if _, err := r.CreateEvent(ctx, event); err != nil {
				return fmt.Errorf("seed event %s: %w", se.title, err)
			}
			rows := make([]models.EventBeneficiary, 0, len(se.allocations))
			for _, a := range se.allocations {
				rows = append(rows, models.EventBeneficiary{
					CharityID:         charityIDs[a.charity],
					AllocationPercent: a.percent,
				})
			}
			if err := r.ReplaceBeneficiaries(ctx, event.ID, rows); err != nil {
				return fmt.Errorf("seed beneficiaries for %s: %w", se.title, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func slug(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		}
	}
	return string(out)
}
