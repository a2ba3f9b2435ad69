package repository

import (
	"context"
	"errors"
	"time"

	"atrium/internal/cache"
	"atrium/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssignmentRepository defines persistence operations for user app assignments.
type AssignmentRepository interface {
	GetByID(ctx context.Context, id uint) (*models.UserAppAssignment, error)
	GetByUserAndTile(ctx context.Context, userID, tileID uint) (*models.UserAppAssignment, error)
	Upsert(ctx context.Context, tx *gorm.DB, a *models.UserAppAssignment) error
	Save(ctx context.Context, a *models.UserAppAssignment) error
	ListByUser(ctx context.Context, userID uint) ([]models.UserAppAssignment, error)
	Revoke(ctx context.Context, id uint) error
	RecordLaunch(ctx context.Context, id uint, at time.Time) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository returns a new AssignmentRepository implementation.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (*models.UserAppAssignment, error) {
	var a models.UserAppAssignment
	if err := r.db.WithContext(ctx).Preload("Tile").First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Assignment", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &a, nil
}

func (r *assignmentRepository) GetByUserAndTile(ctx context.Context, userID, tileID uint) (*models.UserAppAssignment, error) {
	var a models.UserAppAssignment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND tile_id = ?", userID, tileID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &a, nil
}

// Upsert inserts the assignment or, when a (user, tile) row already exists,
// forces its status back to active so a previously revoked grant is usable
// again. Credentials and grant metadata on the existing row are preserved,
// and replayed provisioning never duplicates a grant.
func (r *assignmentRepository) Upsert(ctx context.Context, tx *gorm.DB, a *models.UserAppAssignment) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "tile_id"}},
		DoUpdates: clause.Assignments(map[string]any{"status": models.AssignmentActive}),
	}).Create(a).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, a.UserID)
	return nil
}

// Save writes the full assignment row, for admin edits such as
// re-activating a revoked grant.
func (r *assignmentRepository) Save(ctx context.Context, a *models.UserAppAssignment) error {
	if err := r.db.WithContext(ctx).Save(a).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, a.UserID)
	return nil
}

func (r *assignmentRepository) ListByUser(ctx context.Context, userID uint) ([]models.UserAppAssignment, error) {
	var assignments []models.UserAppAssignment
	if err := r.db.WithContext(ctx).
		Preload("Tile").
		Where("user_id = ? AND status = ?", userID, models.AssignmentActive).
		Order("created_at DESC").
		Find(&assignments).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return assignments, nil
}

func (r *assignmentRepository) Revoke(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.UserAppAssignment{}).
		Where("id = ?", id).
		Update("status", models.AssignmentRevoked)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Assignment", id)
	}
	return nil
}

func (r *assignmentRepository) RecordLaunch(ctx context.Context, id uint, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.UserAppAssignment{}).
		Where("id = ?", id).
		Update("last_launch", at).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
