package repository

import (
	"context"
	"errors"
	"time"

	"atrium/internal/cache"
	"atrium/internal/models"

	"gorm.io/gorm"
)

// TileRepository defines persistence operations for application tiles.
type TileRepository interface {
	GetByID(ctx context.Context, id uint) (*models.ApplicationTile, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.ApplicationTile, error)
	Create(ctx context.Context, tile *models.ApplicationTile) error
	Update(ctx context.Context, tile *models.ApplicationTile) error
	List(ctx context.Context, onlyAvailable bool, category string, limit, offset int) ([]models.ApplicationTile, error)
	FindStoreVisible(ctx context.Context, name, identifier string) (*models.ApplicationTile, error)
	FindByNameOrIdentifier(ctx context.Context, tx *gorm.DB, name, identifier string) (*models.ApplicationTile, error)
	FirstOrCreateByIdentifier(ctx context.Context, tx *gorm.DB, tile *models.ApplicationTile) error
	ListMasterCandidates(ctx context.Context, tx *gorm.DB) ([]models.ApplicationTile, error)
	ListAvailableTx(ctx context.Context, tx *gorm.DB) ([]models.ApplicationTile, error)
	SaveTx(ctx context.Context, tx *gorm.DB, tile *models.ApplicationTile) error
	MarkUnavailableNotSeenSince(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	Delete(ctx context.Context, id uint) error
}

type tileRepository struct {
	db *gorm.DB
}

// NewTileRepository returns a new TileRepository implementation.
func NewTileRepository(db *gorm.DB) TileRepository {
	return &tileRepository{db: db}
}

func (r *tileRepository) GetByID(ctx context.Context, id uint) (*models.ApplicationTile, error) {
	var tile models.ApplicationTile
	if err := r.db.WithContext(ctx).First(&tile, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Tile", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &tile, nil
}

func (r *tileRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.ApplicationTile, error) {
	var tile models.ApplicationTile
	if err := r.db.WithContext(ctx).Where("identifier = ?", identifier).First(&tile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &tile, nil
}

func (r *tileRepository) Create(ctx context.Context, tile *models.ApplicationTile) error {
	if err := r.db.WithContext(ctx).Create(tile).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("a tile with this identifier already exists")
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateStoreListing(ctx)
	return nil
}

func (r *tileRepository) Update(ctx context.Context, tile *models.ApplicationTile) error {
	if err := r.db.WithContext(ctx).Save(tile).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateTile(ctx, tile.Identifier)
	return nil
}

func (r *tileRepository) List(ctx context.Context, onlyAvailable bool, category string, limit, offset int) ([]models.ApplicationTile, error) {
	var tiles []models.ApplicationTile
	q := r.db.WithContext(ctx).Order("name ASC").Limit(limit).Offset(offset)
	if onlyAvailable {
		q = q.Where("available = ?", true)
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Find(&tiles).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return tiles, nil
}

// FindStoreVisible returns an available tile matching the application by
// case-insensitive name or by identifier, or nil when none matches.
func (r *tileRepository) FindStoreVisible(ctx context.Context, name, identifier string) (*models.ApplicationTile, error) {
	var tile models.ApplicationTile
	err := r.db.WithContext(ctx).
		Where("available = ? AND (LOWER(name) = LOWER(?) OR identifier = ?)", true, name, identifier).
		First(&tile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &tile, nil
}

// FindByNameOrIdentifier returns the tile matching the application by
// case-insensitive name or by identifier regardless of availability, or nil
// when none matches. Store-visible rows win over hidden ones.
func (r *tileRepository) FindByNameOrIdentifier(ctx context.Context, tx *gorm.DB, name, identifier string) (*models.ApplicationTile, error) {
	if tx == nil {
		tx = r.db
	}
	var tile models.ApplicationTile
	err := tx.WithContext(ctx).
		Where("LOWER(name) = LOWER(?) OR identifier = ?", name, identifier).
		Order("available DESC, id ASC").
		First(&tile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &tile, nil
}

// FirstOrCreateByIdentifier resolves a tile by identifier, creating it from
// the given template when absent. The template is overwritten with the
// existing row when one is found.
func (r *tileRepository) FirstOrCreateByIdentifier(ctx context.Context, tx *gorm.DB, tile *models.ApplicationTile) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).
		Where(&models.ApplicationTile{Identifier: tile.Identifier}).
		FirstOrCreate(tile).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListMasterCandidates returns the master catalog view: every tile that
// carries a catalog linkage, available or not.
func (r *tileRepository) ListMasterCandidates(ctx context.Context, tx *gorm.DB) ([]models.ApplicationTile, error) {
	if tx == nil {
		tx = r.db
	}
	var tiles []models.ApplicationTile
	if err := tx.WithContext(ctx).
		Where("catalog_id IS NOT NULL AND catalog_id <> ''").
		Order("id ASC").
		Find(&tiles).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return tiles, nil
}

// ListAvailableTx returns the current store view: every tile with
// availability on, whatever its source.
func (r *tileRepository) ListAvailableTx(ctx context.Context, tx *gorm.DB) ([]models.ApplicationTile, error) {
	if tx == nil {
		tx = r.db
	}
	var tiles []models.ApplicationTile
	if err := tx.WithContext(ctx).
		Where("available = ?", true).
		Order("id ASC").
		Find(&tiles).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return tiles, nil
}

// SaveTx saves the tile inside the caller's transaction.
func (r *tileRepository) SaveTx(ctx context.Context, tx *gorm.DB, tile *models.ApplicationTile) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Save(tile).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// MarkUnavailableNotSeenSince retires tiles the master catalog has not
// confirmed since the cutoff: availability flips off and sync_status moves
// to unavailable. Returns how many rows changed.
// Tiles with no last_seen_at, such as those created from requests, are
// never swept.
func (r *tileRepository) MarkUnavailableNotSeenSince(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).Model(&models.ApplicationTile{}).
		Where("available = ? AND last_seen_at IS NOT NULL AND last_seen_at < ?", true, cutoff).
		Updates(map[string]any{"available": false, "sync_status": models.SyncStatusUnavailable})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *tileRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.ApplicationTile{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Tile", id)
	}
	cache.InvalidateStoreListing(ctx)
	return nil
}
