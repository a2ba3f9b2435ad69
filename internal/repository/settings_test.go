package repository

import (
	"context"
	"testing"
	"time"

	"atrium/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRepository_SetUpserts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db)
	ctx := context.Background()

	_, err := repo.Set(ctx, models.SettingCatalogSyncEnabled, true)
	require.NoError(t, err)

	got, err := repo.Get(ctx, models.SettingCatalogSyncEnabled)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Bool(false))

	// Second write replaces, it does not duplicate.
	_, err = repo.Set(ctx, models.SettingCatalogSyncEnabled, false)
	require.NoError(t, err)

	settings, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, settings, 1)
	assert.False(t, settings[0].Bool(true))
}

func TestSettingsRepository_GetMissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db)

	got, err := repo.Get(context.Background(), "nonexistent_key")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTileRepository_MarkUnavailableNotSeenSince(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTileRepository(db)
	ctx := context.Background()

	now := time.Now()
	stale := now.Add(-48 * time.Hour)
	fresh := now.Add(-time.Hour)

	tiles := []models.ApplicationTile{
		{Name: "Old Catalog App", Identifier: "old-catalog-app", CatalogID: "cat-1", Source: models.TileSourceCatalog, Available: true, LastSeenAt: &stale},
		{Name: "Fresh Catalog App", Identifier: "fresh-catalog-app", CatalogID: "cat-2", Source: models.TileSourceCatalog, Available: true, LastSeenAt: &fresh},
		{Name: "Requested App", Identifier: "requested-app", Source: models.TileSourceRequest, Available: true},
	}
	for i := range tiles {
		require.NoError(t, repo.Create(ctx, &tiles[i]))
	}

	n, err := repo.MarkUnavailableNotSeenSince(ctx, nil, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := repo.GetByIdentifier(ctx, "old-catalog-app")
	require.NoError(t, err)
	assert.False(t, old.Available)
	assert.Equal(t, models.SyncStatusUnavailable, old.SyncStatus)

	// Request-sourced tiles are never swept, even without a last_seen_at.
	reqTile, err := repo.GetByIdentifier(ctx, "requested-app")
	require.NoError(t, err)
	assert.True(t, reqTile.Available)
}

func TestAssignmentRepository_UpsertIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssignmentRepository(db)
	ctx := context.Background()

	user := &models.User{Username: "casey", Email: "casey@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)
	tile := &models.ApplicationTile{Name: "Figma", Identifier: "figma"}
	require.NoError(t, db.Create(tile).Error)

	a1 := &models.UserAppAssignment{UserID: user.ID, TileID: tile.ID, Status: models.AssignmentActive}
	require.NoError(t, repo.Upsert(ctx, nil, a1))

	a2 := &models.UserAppAssignment{UserID: user.ID, TileID: tile.ID, Status: models.AssignmentActive}
	require.NoError(t, repo.Upsert(ctx, nil, a2))

	var count int64
	require.NoError(t, db.Model(&models.UserAppAssignment{}).
		Where("user_id = ? AND tile_id = ?", user.ID, tile.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAssignmentRepository_UpsertReactivatesRevoked(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssignmentRepository(db)
	ctx := context.Background()

	user := &models.User{Username: "jordan", Email: "jordan@example.com", PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)
	tile := &models.ApplicationTile{Name: "Miro", Identifier: "miro"}
	require.NoError(t, db.Create(tile).Error)

	existing := &models.UserAppAssignment{
		UserID: user.ID, TileID: tile.ID,
		Status: models.AssignmentRevoked, LaunchUsername: "jordan.miro",
	}
	require.NoError(t, db.Create(existing).Error)

	a := &models.UserAppAssignment{UserID: user.ID, TileID: tile.ID, Status: models.AssignmentActive}
	require.NoError(t, repo.Upsert(ctx, nil, a))

	// The row is active again; credentials survive the conflict.
	var got models.UserAppAssignment
	require.NoError(t, db.First(&got, existing.ID).Error)
	assert.Equal(t, models.AssignmentActive, got.Status)
	assert.Equal(t, "jordan.miro", got.LaunchUsername)

	var count int64
	require.NoError(t, db.Model(&models.UserAppAssignment{}).
		Where("user_id = ? AND tile_id = ?", user.ID, tile.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
