package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
)

// Repository defines persistence for events, beneficiaries, organisers and charities.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateEvent(ctx context.Context, event *models.Event) (*models.Event, error)
	UpdateEvent(ctx context.Context, eventID uint, updates map[string]any) error
	FindEvent(ctx context.Context, eventID uint) (*models.Event, error)
	ListEvents(ctx context.Context, includeUnpublished bool) ([]models.Event, error)
	CountEvents(ctx context.Context) (int64, error)
	ReplaceBeneficiaries(ctx context.Context, eventID uint, rows []models.EventBeneficiary) error

	VerifiedCharities(ctx context.Context, ids []uint) (map[uint]bool, error)
	ListVerifiedCharities(ctx context.Context) ([]models.Charity, error)
	ListCharities(ctx context.Context) ([]models.Charity, error)
	CreateCharity(ctx context.Context, charity *models.Charity) (*models.Charity, error)
	FindCharity(ctx context.Context, id uint) (*models.Charity, error)

	ListOrganisers(ctx context.Context) ([]models.Organiser, error)
	CreateOrganiser(ctx context.Context, organiser *models.Organiser) (*models.Organiser, error)
	FindOrganiser(ctx context.Context, id uint) (*models.Organiser, error)
	FindOrganiserByUser(ctx context.Context, userID uuid.UUID) (*models.Organiser, error)
	FirstOrganiser(ctx context.Context) (*models.Organiser, error)

	SetVerification(ctx context.Context, orgType enums.OrgType, id uint, status enums.VerificationStatus, verified bool) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository backed by the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateEvent(ctx context.Context, event *models.Event) (*models.Event, error) {
	if err := r.db.WithContext(ctx).Omit("Beneficiaries", "Organiser").Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *repository) UpdateEvent(ctx context.Context, eventID uint, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", eventID).
		Updates(updates).Error
}

// FindEvent loads an event with its beneficiaries and their charities.
func (r *repository) FindEvent(ctx context.Context, eventID uint) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Preload("Beneficiaries", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Beneficiaries.Charity").
		Where("id = ?", eventID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) ListEvents(ctx context.Context, includeUnpublished bool) ([]models.Event, error) {
	q := r.db.WithContext(ctx).Order("starts_at ASC").Order("id ASC")
	if !includeUnpublished {
		q = q.Where("published = ?", true)
	}
	var events []models.Event
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Event{}).Count(&count).Error
	return count, err
}

// ReplaceBeneficiaries deletes the full previous set before inserting rows.
// Callers run it inside a transaction.
func (r *repository) ReplaceBeneficiaries(ctx context.Context, eventID uint, rows []models.EventBeneficiary) error {
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&models.EventBeneficiary{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].EventID = eventID
		rows[i].ID = 0
	}
	return r.db.WithContext(ctx).Omit("Charity").Create(&rows).Error
}

// VerifiedCharities reports the verified flag for each requested id. Unknown
// ids are absent from the map.
func (r *repository) VerifiedCharities(ctx context.Context, ids []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Charity
	err := r.db.WithContext(ctx).
		Select("id", "verified").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.Verified
	}
	return out, nil
}

func (r *repository) ListVerifiedCharities(ctx context.Context) ([]models.Charity, error) {
	var rows []models.Charity
	err := r.db.WithContext(ctx).
		Where("verified = ?", true).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListCharities(ctx context.Context) ([]models.Charity, error) {
	var rows []models.Charity
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateCharity(ctx context.Context, charity *models.Charity) (*models.Charity, error) {
	if err := r.db.WithContext(ctx).Create(charity).Error; err != nil {
		return nil, err
	}
	return charity, nil
}

func (r *repository) FindCharity(ctx context.Context, id uint) (*models.Charity, error) {
	var charity models.Charity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&charity).Error; err != nil {
		return nil, err
	}
	return &charity, nil
}

func (r *repository) ListOrganisers(ctx context.Context) ([]models.Organiser, error) {
	var rows []models.Organiser
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateOrganiser(ctx context.Context, organiser *models.Organiser) (*models.Organiser, error) {
	if err := r.db.WithContext(ctx).Create(organiser).Error; err != nil {
		return nil, err
	}
	return organiser, nil
}

func (r *repository) FindOrganiser(ctx context.Context, id uint) (*models.Organiser, error) {
	var organiser models.Organiser
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&organiser).Error; err != nil {
		return nil, err
	}
	return &organiser, nil
}

func (r *repository) FindOrganiserByUser(ctx context.Context, userID uuid.UUID) (*models.Organiser, error) {
	var organiser models.Organiser
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		First(&organiser).Error
	if err != nil {
		return nil, err
	}
	return &organiser, nil
}

func (r *repository) FirstOrganiser(ctx context.Context) (*models.Organiser, error) {
	var organiser models.Organiser
	if err := r.db.WithContext(ctx).Order("id ASC").First(&organiser).Error; err != nil {
		return nil, err
	}
	return &organiser, nil
}

func (r *repository) SetVerification(ctx context.Context, orgType enums.OrgType, id uint, status enums.VerificationStatus, verified bool) (int64, error) {
	var model any = &models.Organiser{}
	if orgType == enums.OrgTypeCharity {
		model = &models.Charity{}
	}
	res := r.db.WithContext(ctx).
		Model(model).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"verified":   verified,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}
