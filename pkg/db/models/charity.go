package models

import (
	"time"

	"github.com/charityconnect/charityconnect-backend/pkg/enums"
)

// Charity can be named as an event beneficiary once verified.
type Charity struct {
	ID            uint                     `gorm:"column:id;primaryKey"`
	Name          string                   `gorm:"column:name;not null"`
	CharityNumber *string                  `gorm:"column:charity_number"`
	ContactEmail  string                   `gorm:"column:contact_email;not null"`
	Website       *string                  `gorm:"column:website"`
	Status        enums.VerificationStatus `gorm:"column:status;not null;default:pending"`
	Verified      bool                     `gorm:"column:verified;not null;default:false"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Charity) TableName() string { return "charities" }
