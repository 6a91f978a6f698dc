package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/example/srdflow/internal/models"
)

// SRDRepository provides persistence access for the SRD aggregate.
type SRDRepository struct {
	db *gorm.DB
}

// NewSRDRepository constructs a repository using the provided gorm DB.
func NewSRDRepository(db *gorm.DB) *SRDRepository {
	return &SRDRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *SRDRepository) WithTx(tx *gorm.DB) *SRDRepository {
	return &SRDRepository{db: tx}
}

// Create persists a new SRD. A refno collision surfaces as
// gorm.ErrDuplicatedKey for the caller's retry loop.
func (r *SRDRepository) Create(ctx context.Context, srd *models.SRD) error {
	return errors.WithStack(r.db.WithContext(ctx).Create(srd).Error)
}

// Save persists the whole modified aggregate.
func (r *SRDRepository) Save(ctx context.Context, srd *models.SRD) error {
	return errors.WithStack(r.db.WithContext(ctx).Save(srd).Error)
}

// FindByID returns the SRD by id.
func (r *SRDRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.SRD, error) {
	var srd models.SRD
	if err := r.db.WithContext(ctx).First(&srd, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(models.ErrNotFound)
		}
		return nil, errors.WithStack(err)
	}
	return &srd, nil
}

// List returns SRDs ordered by creation time descending.
func (r *SRDRepository) List(ctx context.Context, limit int) ([]models.SRD, error) {
	if limit <= 0 {
		limit = 100
	}
	var srds []models.SRD
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&srds).Error
	return srds, errors.WithStack(err)
}

// All returns every SRD ordered by creation time descending, for exports and
// backup snapshots.
func (r *SRDRepository) All(ctx context.Context) ([]models.SRD, error) {
	var srds []models.SRD
	err := r.db.WithContext(ctx).Order("created_at desc").Find(&srds).Error
	return srds, errors.WithStack(err)
}

// Delete removes the aggregate unconditionally.
func (r *SRDRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.SRD{}, "id = ?", id)
	if res.Error != nil {
		return errors.WithStack(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.WithStack(models.ErrNotFound)
	}
	return nil
}
