package repository

import (
	"context"
	"encoding/json"
	"errors"

	"atrium/internal/cache"
	"atrium/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository defines persistence operations for system settings.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (*models.SystemSetting, error)
	Set(ctx context.Context, key string, value any) (*models.SystemSetting, error)
	List(ctx context.Context) ([]models.SystemSetting, error)
}

type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository returns a new SettingsRepository implementation.
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (*models.SystemSetting, error) {
	var setting models.SystemSetting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &setting, nil
}

// Set upserts the setting by key, replacing any previous value.
func (r *settingsRepository) Set(ctx context.Context, key string, value any) (*models.SystemSetting, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, models.NewValidationError("setting value is not valid JSON")
	}

	setting := models.SystemSetting{
		Key:   key,
		Value: models.JSONValue{Raw: raw},
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	cache.InvalidateSetting(ctx, key)
	return &setting, nil
}

func (r *settingsRepository) List(ctx context.Context) ([]models.SystemSetting, error) {
	var settings []models.SystemSetting
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&settings).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return settings, nil
}
