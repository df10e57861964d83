package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/charityconnect/charityconnect-backend/pkg/enums"
)

// Organiser is a body that runs events. It must be verified by an admin.
type Organiser struct {
	ID           uint                     `gorm:"column:id;primaryKey"`
	UserID       *uuid.UUID               `gorm:"column:user_id;type:uuid;index"`
	Name         string                   `gorm:"column:name;not null"`
	ContactEmail string                   `gorm:"column:contact_email;not null"`
	Phone        *string                  `gorm:"column:phone"`
	Website      *string                  `gorm:"column:website"`
	Status       enums.VerificationStatus `gorm:"column:status;not null;default:pending"`
	Verified     bool                     `gorm:"column:verified;not null;default:false"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Organiser) TableName() string { return "organisers" }
