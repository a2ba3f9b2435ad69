package repository

import (
	"context"

	"atrium/internal/models"

	"gorm.io/gorm"
)

// AuditRepository records administrative actions. Write-only apart from the
// listing used by the admin console.
type AuditRepository interface {
	Record(ctx context.Context, tx *gorm.DB, entry *models.AuditLog) error
	List(ctx context.Context, limit, offset int) ([]models.AuditLog, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository returns a new AuditRepository implementation.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Record writes the entry, inside the caller's transaction when one is given.
func (r *auditRepository) Record(ctx context.Context, tx *gorm.DB, entry *models.AuditLog) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	if err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}
