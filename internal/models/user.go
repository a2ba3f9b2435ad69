package models

import (
	"time"

	"gorm.io/gorm"
)

// Roles understood by the permission checker.
const (
	RoleEmployee = "employee"
	RoleApprover = "approver"
	RoleAdmin    = "admin"
	RoleRoot     = "root"
)

// User is a portal account. Role drives permission resolution; there is no
// per-user permission storage.
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	DisplayName  string         `json:"display_name"`
	Department   string         `json:"department"`
	Role         string         `gorm:"not null;default:employee" json:"role"`
	IsActive     bool           `gorm:"not null;default:true" json:"is_active"`
}

// CanReview reports whether the user's role is allowed to act on requests
// submitted by others.
func (u *User) CanReview() bool {
	return u.Role == RoleApprover || u.Role == RoleAdmin || u.Role == RoleRoot
}
