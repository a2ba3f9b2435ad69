package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Catalog sync run statuses.
const (
	SyncRunning   = "running"
	SyncCompleted = "completed"
	SyncFailed    = "failed"
)

// SyncErrorList stores per-entry sync errors as a JSON array column.
type SyncErrorList []string

func (l SyncErrorList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *SyncErrorList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported type for SyncErrorList: %T", value)
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(b, l)
}

// CatalogSyncLog records one catalog sync run. A row is created in the
// running state when a sync is triggered and closed exactly once with
// either completed or failed.
type CatalogSyncLog struct {
	ID                uint          `gorm:"primarykey" json:"id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	SyncID            string        `gorm:"uniqueIndex;not null" json:"sync_id"`
	Status            string        `gorm:"not null;default:running;index" json:"status"`
	Trigger           string        `gorm:"column:trigger_kind;not null" json:"trigger"`
	TriggeredByID     *uint         `json:"triggered_by_id,omitempty"`
	StartedAt         time.Time     `gorm:"not null" json:"started_at"`
	FinishedAt        *time.Time    `json:"finished_at,omitempty"`
	AppsAdded         int           `gorm:"not null;default:0" json:"apps_added"`
	AppsUpdated       int           `gorm:"not null;default:0" json:"apps_updated"`
	AppsMarkedGone    int           `gorm:"not null;default:0" json:"apps_marked_unavailable"`
	ErrorMessage      string        `gorm:"type:text" json:"error_message,omitempty"`
	EntryErrors       SyncErrorList `gorm:"type:text" json:"entry_errors,omitempty"`
}

// Sync trigger kinds.
const (
	SyncTriggerOnDemand  = "on_demand"
	SyncTriggerScheduled = "scheduled"
)
