package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Assignment statuses.
const (
	AssignmentActive  = "active"
	AssignmentRevoked = "revoked"
)

// UserAppAssignment grants a user access to an application tile. The
// (UserID, TileID) pair is unique; provisioning upserts against it so a
// replayed approval never produces a duplicate grant.
type UserAppAssignment struct {
	ID         uint             `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	DeletedAt  gorm.DeletedAt   `gorm:"index" json:"-"`
	UserID     uint             `gorm:"not null;uniqueIndex:idx_user_tile" json:"user_id"`
	User       *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TileID     uint             `gorm:"not null;uniqueIndex:idx_user_tile" json:"tile_id"`
	Tile       *ApplicationTile `gorm:"foreignKey:TileID" json:"tile,omitempty"`
	Status     string           `gorm:"not null;default:active" json:"status"`
	GrantedBy  *uint            `json:"granted_by,omitempty"`
	SourceType string           `gorm:"not null;default:request" json:"source_type"`
	// LaunchUsername and PINHash support apps that need per-user launch
	// credentials; both are optional.
	LaunchUsername string     `json:"launch_username,omitempty"`
	PINHash        string     `json:"-"`
	LastLaunch     *time.Time `json:"last_launch,omitempty"`
}

// SetPIN hashes and stores a launch PIN for the assignment.
func (a *UserAppAssignment) SetPIN(pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PINHash = string(hash)
	return nil
}

// CheckPIN verifies a launch PIN against the stored hash. Assignments
// without a PIN accept any input.
func (a *UserAppAssignment) CheckPIN(pin string) bool {
	if a.PINHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PINHash), []byte(pin)) == nil
}
