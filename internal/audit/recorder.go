// Package audit appends audit_logs rows inside the caller's transaction.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charityconnect/charityconnect-backend/pkg/auth"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
)

// Entry describes one audited action.
type Entry struct {
	Actor      auth.Actor
	Action     string
	EntityType string
	EntityID   string
	Meta       any
}

// Writer is the surface consumed by services that audit their mutations.
type Writer interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.Action == "" || entry.EntityType == "" || entry.EntityID == "" {
		return errors.New("audit entry requires action and entity")
	}
	var meta json.RawMessage
	if entry.Meta != nil {
		raw, err := json.Marshal(entry.Meta)
		if err != nil {
			return fmt.Errorf("marshal audit meta: %w", err)
		}
		meta = raw
	}
	role := string(entry.Actor.Role)
	if role == "" {
		role = "anonymous"
	}
	row := models.AuditLog{
		ActorID:    entry.Actor.UserRef(),
		ActorRole:  role,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Meta:       meta,
	}
	return tx.WithContext(ctx).Create(&row).Error
}

// ListForEntity returns the audit trail of one entity, oldest first.
func ListForEntity(ctx context.Context, db *gorm.DB, entityType, entityID string) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
