package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductionStage is one ordered step of the post-approval pipeline. Stages
// are never deleted or reordered in place: historical SRDs reference them by
// id, so retiring a stage flips IsActive and new stages are inserted with
// appropriate order values.
type ProductionStage struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Order     int       `json:"order" gorm:"not null"`
	IsActive  bool      `json:"isActive" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate is a GORM hook that populates the primary key.
func (s *ProductionStage) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
