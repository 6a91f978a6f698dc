package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/example/srdflow/internal/models"
)

// StageRepository provides persistence access for production stages. It is the
// stage registry injected into the production engine.
type StageRepository struct {
	db *gorm.DB
}

// NewStageRepository constructs a repository using the provided gorm DB.
func NewStageRepository(db *gorm.DB) *StageRepository {
	return &StageRepository{db: db}
}

// ListActive returns active stages ordered ascending by order value, the
// shape the production engine expects.
func (r *StageRepository) ListActive(ctx context.Context) ([]models.ProductionStage, error) {
	var stages []models.ProductionStage
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order(`"order" asc`).
		Find(&stages).Error
	return stages, errors.WithStack(err)
}

// List returns every stage, retired ones included, ordered ascending.
func (r *StageRepository) List(ctx context.Context) ([]models.ProductionStage, error) {
	var stages []models.ProductionStage
	err := r.db.WithContext(ctx).Order(`"order" asc`).Find(&stages).Error
	return stages, errors.WithStack(err)
}

// FindByID returns one stage.
func (r *StageRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProductionStage, error) {
	var stage models.ProductionStage
	if err := r.db.WithContext(ctx).First(&stage, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(models.ErrNotFound)
		}
		return nil, errors.WithStack(err)
	}
	return &stage, nil
}

// Create persists a new stage.
func (r *StageRepository) Create(ctx context.Context, stage *models.ProductionStage) error {
	return errors.WithStack(r.db.WithContext(ctx).Create(stage).Error)
}

// Update persists stage edits. Deactivation is soft; stages are never
// physically deleted because historical SRDs reference them by id.
func (r *StageRepository) Update(ctx context.Context, stage *models.ProductionStage) error {
	return errors.WithStack(r.db.WithContext(ctx).Save(stage).Error)
}
