package model

import (
	"time"
)

// User represents a member of an organization
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	Name           string    `gorm:"not null" json:"name"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	TokenVersion   int       `gorm:"default:0" json:"-"` // Increment to invalidate all user tokens

	// Relationships
	Organization Organization `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (User) TableName() string {
	return "users"
}
