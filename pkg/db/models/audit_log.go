package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records who changed what for admin and organiser actions.
type AuditLog struct {
	ID         uint            `gorm:"column:id;primaryKey"`
	ActorID    *uuid.UUID      `gorm:"column:actor_id;type:uuid"`
	ActorRole  string          `gorm:"column:actor_role;not null"`
	Action     string          `gorm:"column:action;not null"`
	EntityType string          `gorm:"column:entity_type;not null;index:ix_audit_logs_entity,priority:1"`
	EntityID   string          `gorm:"column:entity_id;not null;index:ix_audit_logs_entity,priority:2"`
	Meta       json.RawMessage `gorm:"column:meta;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLog) TableName() string { return "audit_logs" }
