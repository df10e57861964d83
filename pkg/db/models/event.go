package models

import "time"

// Event is a ticketed fundraiser owned by an organiser.
type Event struct {
	ID               uint               `gorm:"column:id;primaryKey"`
	OrganiserID      uint               `gorm:"column:organiser_id;not null;index"`
	Organiser        *Organiser         `gorm:"foreignKey:OrganiserID;constraint:OnDelete:RESTRICT"`
	Title            string             `gorm:"column:title;not null"`
	Description      string             `gorm:"column:description;not null;default:''"`
	Venue            string             `gorm:"column:venue;not null;default:''"`
	StartsAt         time.Time          `gorm:"column:starts_at;not null;index"`
	TicketPriceCents int64              `gorm:"column:ticket_price_cents;not null;check:chk_events_ticket_price_nonneg,ticket_price_cents >= 0"`
	Published        bool               `gorm:"column:published;not null;default:false"`
	Beneficiaries    []EventBeneficiary `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Event) TableName() string { return "events" }

// EventBeneficiary allocates a percentage of an event's proceeds to a charity.
type EventBeneficiary struct {
	ID                uint     `gorm:"column:id;primaryKey"`
	EventID           uint     `gorm:"column:event_id;not null;index"`
	CharityID         uint     `gorm:"column:charity_id;not null;index"`
	Charity           *Charity `gorm:"foreignKey:CharityID;constraint:OnDelete:RESTRICT"`
	AllocationPercent int      `gorm:"column:allocation_percent;not null;check:chk_event_beneficiaries_percent,allocation_percent BETWEEN 1 AND 100"`
}

func (EventBeneficiary) TableName() string { return "event_beneficiaries" }
