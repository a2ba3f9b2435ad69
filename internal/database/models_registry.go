package database

import "atrium/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.ApplicationTile{},
		&models.AppRequest{},
		&models.AppRequestHistory{},
		&models.UserAppAssignment{},
		&models.CatalogSyncLog{},
		&models.SystemSetting{},
		&models.AuditLog{},
	}
}
