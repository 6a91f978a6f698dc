package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/example/srdflow/internal/models"
)

// DepartmentRepository provides persistence access for departments and their
// custom field definitions. It doubles as the registry injected into the
// approval engine.
type DepartmentRepository struct {
	db *gorm.DB
}

// NewDepartmentRepository constructs a repository using the provided gorm DB.
func NewDepartmentRepository(db *gorm.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// List returns all departments ordered for display.
func (r *DepartmentRepository) List(ctx context.Context) ([]models.Department, error) {
	var depts []models.Department
	err := r.db.WithContext(ctx).Order(`"order" asc, slug asc`).Find(&depts).Error
	return depts, errors.WithStack(err)
}

// ListParticipatingSlugs returns the slugs counted in progress and readiness.
func (r *DepartmentRepository) ListParticipatingSlugs(ctx context.Context) ([]string, error) {
	return r.listSlugs(ctx, true)
}

// ListExcludedSlugs returns administrative role slugs, which must never
// appear in an SRD status map.
func (r *DepartmentRepository) ListExcludedSlugs(ctx context.Context) ([]string, error) {
	return r.listSlugs(ctx, false)
}

func (r *DepartmentRepository) listSlugs(ctx context.Context, participant bool) ([]string, error) {
	var slugs []string
	err := r.db.WithContext(ctx).Model(&models.Department{}).
		Where("is_participant = ?", participant).
		Order(`"order" asc, slug asc`).
		Pluck("slug", &slugs).Error
	return slugs, errors.WithStack(err)
}

// FindBySlug returns one department.
func (r *DepartmentRepository) FindBySlug(ctx context.Context, slug string) (*models.Department, error) {
	var dept models.Department
	if err := r.db.WithContext(ctx).First(&dept, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(models.ErrNotFound)
		}
		return nil, errors.WithStack(err)
	}
	return &dept, nil
}

// Create persists a new department.
func (r *DepartmentRepository) Create(ctx context.Context, dept *models.Department) error {
	return errors.WithStack(r.db.WithContext(ctx).Create(dept).Error)
}

// Update persists department edits.
func (r *DepartmentRepository) Update(ctx context.Context, dept *models.Department) error {
	return errors.WithStack(r.db.WithContext(ctx).Save(dept).Error)
}

// DeleteCascade removes a department together with its field definitions.
func (r *DepartmentRepository) DeleteCascade(ctx context.Context, slug string) error {
	return errors.WithStack(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.DepartmentField{}, "department_slug = ?", slug).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Department{}, "slug = ?", slug)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrNotFound
		}
		return nil
	}))
}

// ListFields returns one department's field definitions ordered by position.
func (r *DepartmentRepository) ListFields(ctx context.Context, slug string) ([]models.DepartmentField, error) {
	var fields []models.DepartmentField
	err := r.db.WithContext(ctx).
		Where("department_slug = ?", slug).
		Order("position asc, name asc").
		Find(&fields).Error
	return fields, errors.WithStack(err)
}

// ReplaceFields swaps a department's field definitions atomically.
func (r *DepartmentRepository) ReplaceFields(ctx context.Context, slug string, fields []models.DepartmentField) error {
	return errors.WithStack(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.DepartmentField{}, "department_slug = ?", slug).Error; err != nil {
			return err
		}
		for i := range fields {
			fields[i].DepartmentSlug = slug
			fields[i].Position = i
		}
		if len(fields) == 0 {
			return nil
		}
		return tx.Create(&fields).Error
	}))
}
