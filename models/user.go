package models

import (
	"time"
)

// Authority roles that receive in-app alerts
const (
	RoleAdmin     = "admin"
	RoleAuthority = "authority"
	RoleViewer    = "viewer"
)

// User model for authentication
type User struct {
	ID           string    `gorm:"primaryKey;column:id" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"default:authority;index" json:"role"`
	Active       bool      `gorm:"default:true" json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}
