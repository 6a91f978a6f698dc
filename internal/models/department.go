package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Department is one approval participant (vmd, cad, commercial, ...) or an
// administrative role (admin, production-manager). Slug is the stable join key
// used in SRD status maps; administrative roles have IsParticipant=false and
// never appear in a status map.
type Department struct {
	Slug          string    `json:"slug" gorm:"type:varchar(50);primaryKey"`
	Name          string    `json:"name" gorm:"type:varchar(100);not null"`
	Order         int       `json:"order" gorm:"not null;default:0"`
	IsParticipant bool      `json:"isParticipant" gorm:"not null;default:true"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Fields []DepartmentField `json:"fields,omitempty" gorm:"foreignKey:DepartmentSlug;references:Slug"`
}

// DepartmentField is a custom field definition owned by one department.
// Definitions are deleted together with their department.
type DepartmentField struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	DepartmentSlug string         `json:"department" gorm:"type:varchar(50);not null;index"`
	Name           string         `json:"name" gorm:"type:varchar(100);not null"`
	Label          string         `json:"label" gorm:"type:varchar(200)"`
	Type           string         `json:"type" gorm:"type:varchar(20);not null;default:text"`
	Required       bool           `json:"required" gorm:"not null;default:false"`
	Options        datatypes.JSON `json:"options,omitempty" gorm:"type:jsonb"`
	Position       int            `json:"position" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// BeforeCreate is a GORM hook that populates the primary key.
func (f *DepartmentField) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
