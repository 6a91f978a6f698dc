package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a known member of a department. Authentication itself is external;
// users are kept so creation notices can fan out to everyone.
type User struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Username   string    `json:"username" gorm:"type:varchar(100);uniqueIndex;not null"`
	Name       string    `json:"name" gorm:"type:varchar(100)"`
	Email      string    `json:"email" gorm:"type:varchar(200)"`
	Role       string    `json:"role" gorm:"type:varchar(50)"`
	Department string    `json:"department" gorm:"type:varchar(50);index"`
	PushToken  string    `json:"-" gorm:"type:text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// BeforeCreate is a GORM hook that populates the primary key.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
