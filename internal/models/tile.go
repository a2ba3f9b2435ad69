package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Tile sources record how a tile entered the catalog.
const (
	TileSourceCatalog = "catalog"
	TileSourceRequest = "request"
	TileSourceManual  = "manual"
)

// Tile sync statuses track the master catalog's view of a tile: pending
// until a sync pass confirms it, synced once confirmed, unavailable once
// the sweep has retired it.
const (
	SyncStatusPending     = "pending"
	SyncStatusSynced      = "synced"
	SyncStatusUnavailable = "unavailable"
)

// ApplicationTile is a launchable application in the portal catalog.
// Identifier is the stable key used to resolve tiles during request
// provisioning. CatalogID links a tile to the master catalog; tiles created
// from requests carry no CatalogID and are ignored by the sync sweep.
// LastSeenAt records when the master catalog last confirmed the tile.
type ApplicationTile struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Identifier  string         `gorm:"uniqueIndex;not null" json:"identifier"`
	CatalogID   string         `gorm:"index" json:"catalog_id,omitempty"`
	Description string         `gorm:"type:text" json:"description"`
	Category    string         `gorm:"index" json:"category"`
	Version     string         `json:"version,omitempty"`
	Publisher   string         `json:"publisher,omitempty"`
	Tags        string         `json:"tags,omitempty"`
	IconURL     string         `json:"icon_url"`
	LaunchURL   string         `json:"launch_url"`
	Source      string         `gorm:"not null;default:catalog" json:"source"`
	Available   bool           `gorm:"not null;default:true;index" json:"available"`
	SyncStatus  string         `gorm:"not null;default:pending" json:"sync_status"`
	LastSeenAt  *time.Time     `json:"last_seen_at,omitempty"`
}

// DeriveIdentifier produces the stable tile identifier for an application
// name: lowercased, with runs of whitespace collapsed to single hyphens.
func DeriveIdentifier(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
