package repository

import (
	"context"
	"errors"

	"atrium/internal/models"

	"gorm.io/gorm"
)

// SyncLogRepository defines persistence operations for catalog sync logs.
type SyncLogRepository interface {
	Create(ctx context.Context, log *models.CatalogSyncLog) error
	GetBySyncID(ctx context.Context, syncID string) (*models.CatalogSyncLog, error)
	Update(ctx context.Context, log *models.CatalogSyncLog) error
	List(ctx context.Context, limit, offset int) ([]models.CatalogSyncLog, error)
	LatestRunning(ctx context.Context) (*models.CatalogSyncLog, error)
}

type syncLogRepository struct {
	db *gorm.DB
}

// NewSyncLogRepository returns a new SyncLogRepository implementation.
func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

func (r *syncLogRepository) Create(ctx context.Context, log *models.CatalogSyncLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *syncLogRepository) GetBySyncID(ctx context.Context, syncID string) (*models.CatalogSyncLog, error) {
	var log models.CatalogSyncLog
	if err := r.db.WithContext(ctx).Where("sync_id = ?", syncID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Sync run", syncID)
		}
		return nil, models.NewInternalError(err)
	}
	return &log, nil
}

func (r *syncLogRepository) Update(ctx context.Context, log *models.CatalogSyncLog) error {
	if err := r.db.WithContext(ctx).Save(log).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *syncLogRepository) List(ctx context.Context, limit, offset int) ([]models.CatalogSyncLog, error) {
	var logs []models.CatalogSyncLog
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).Offset(offset).
		Find(&logs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return logs, nil
}

func (r *syncLogRepository) LatestRunning(ctx context.Context) (*models.CatalogSyncLog, error) {
	var log models.CatalogSyncLog
	err := r.db.WithContext(ctx).
		Where("status = ?", models.SyncRunning).
		Order("started_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &log, nil
}
