package models

import "time"

// AuditLog is an append-only record of administrative actions outside the
// request lifecycle (tile edits, setting changes, assignment revocations).
type AuditLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ActorID   uint      `gorm:"not null;index" json:"actor_id"`
	Action    string    `gorm:"not null;index" json:"action"`
	Target    string    `json:"target"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"`
}
