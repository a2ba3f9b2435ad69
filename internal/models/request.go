package models

import (
	"time"

	"gorm.io/gorm"
)

// App request lifecycle statuses. Transitions are enforced by the request
// service; the set here is closed and nothing else may be persisted.
const (
	StatusSubmitted   = "submitted"
	StatusInReview    = "in_review"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
	StatusImplemented = "implemented"
	StatusCancelled   = "cancelled"

	// legacyStatusPending predates the lifecycle rework. Rows carrying it are
	// normalized to StatusSubmitted on read.
	legacyStatusPending = "PENDING"
)

// TerminalStatuses are statuses from which no further transition exists.
var TerminalStatuses = map[string]bool{
	StatusRejected:    true,
	StatusImplemented: true,
	StatusCancelled:   true,
}

// OpenStatuses are statuses counted against the duplicate-request guard.
var OpenStatuses = []string{StatusSubmitted, StatusInReview, StatusApproved, legacyStatusPending}

// AppRequest is an employee's request for access to an application.
// AppName/AppIdentifier address the application while it is unresolved;
// once provisioning binds a tile, AppID carries the authoritative target
// and AppExistsInStore flips to true.
type AppRequest struct {
	ID               uint             `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	DeletedAt        gorm.DeletedAt   `gorm:"index" json:"-"`
	RequesterID      uint             `gorm:"not null;index" json:"requester_id"`
	Requester        *User            `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	AppName          string           `gorm:"not null" json:"app_name"`
	AppIdentifier    string           `gorm:"not null;index" json:"app_identifier"`
	AppID            *uint            `gorm:"index" json:"app_id,omitempty"`
	App              *ApplicationTile `gorm:"foreignKey:AppID" json:"app,omitempty"`
	AppExistsInStore bool             `gorm:"not null;default:false" json:"app_exists_in_store"`
	Justification    string           `gorm:"type:text" json:"justification"`
	CostCenter       string           `json:"cost_center,omitempty"`
	Priority         string           `json:"priority,omitempty"`
	DesiredByDate    *time.Time       `json:"desired_by_date,omitempty"`
	Notes            string           `gorm:"type:text" json:"notes,omitempty"`
	Status           string           `gorm:"not null;default:submitted;index" json:"status"`
	DecisionNote     string           `gorm:"type:text" json:"decision_note,omitempty"`
	DecidedByID      *uint            `json:"decided_by_id,omitempty"`
	DecidedBy        *User            `gorm:"foreignKey:DecidedByID" json:"decided_by,omitempty"`
	DecidedAt        *time.Time       `json:"decided_at,omitempty"`
}

// AfterFind normalizes legacy PENDING rows to the submitted status. The
// database row is left untouched; repair happens at the read boundary only.
func (r *AppRequest) AfterFind(tx *gorm.DB) error {
	if r.Status == legacyStatusPending {
		r.Status = StatusSubmitted
	}
	return nil
}

// IsTerminal reports whether the request has reached a final status.
func (r *AppRequest) IsTerminal() bool {
	return TerminalStatuses[r.Status]
}

// AppRequestHistory is an append-only record of a single status transition.
// Rows are never updated or deleted once written.
type AppRequestHistory struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	RequestID  uint      `gorm:"not null;index" json:"request_id"`
	FromStatus string    `gorm:"not null" json:"from_status"`
	ToStatus   string    `gorm:"not null" json:"to_status"`
	ActorID    uint      `gorm:"not null" json:"actor_id"`
	Actor      *User     `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
	Note       string    `gorm:"type:text" json:"note,omitempty"`
}
