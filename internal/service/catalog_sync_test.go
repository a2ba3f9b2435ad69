package service

import (
	"context"
	"testing"
	"time"

	"atrium/internal/models"
	"atrium/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSyncService(ctx context.Context, db *gorm.DB) *CatalogSyncService {
	return NewCatalogSyncService(ctx, db,
		repository.NewTileRepository(db),
		repository.NewSyncLogRepository(db),
		repository.NewSettingsRepository(db),
		repository.NewAuditRepository(db),
	)
}

func TestCatalogSync_TriggerReturnsRunningLog(t *testing.T) {
	db := setupTestDB(t)
	svc := newSyncService(context.Background(), db)
	ctx := context.Background()
	actor := createTestUser(t, db, "admin", models.RoleAdmin)

	log, err := svc.Trigger(ctx, &actor.ID, models.SyncTriggerOnDemand)
	require.NoError(t, err)
	assert.NotEmpty(t, log.SyncID)
	assert.Equal(t, models.SyncRunning, log.Status)

	svc.Wait()

	closed, err := svc.GetRun(ctx, log.SyncID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncCompleted, closed.Status)
	require.NotNil(t, closed.FinishedAt)
}

func TestCatalogSync_DisabledGateRefusesManualTrigger(t *testing.T) {
	db := setupTestDB(t)
	svc := newSyncService(context.Background(), db)
	ctx := context.Background()
	actor := createTestUser(t, db, "admin", models.RoleAdmin)

	settings := repository.NewSettingsRepository(db)
	_, err := settings.Set(ctx, models.SettingCatalogSyncEnabled, false)
	require.NoError(t, err)

	_, err = svc.Trigger(ctx, &actor.ID, models.SyncTriggerOnDemand)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeSyncDisabled, appErr.Code)

	// No log row is written for a refused trigger.
	var count int64
	require.NoError(t, db.Model(&models.CatalogSyncLog{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCatalogSync_ReconcileCounters(t *testing.T) {
	db := setupTestDB(t)
	svc := newSyncService(context.Background(), db)
	ctx := context.Background()
	actor := createTestUser(t, db, "admin", models.RoleAdmin)

	now := time.Now()
	stale := now.Add(-48 * time.Hour)

	// One catalog entry the store does not show yet, one it already shows,
	// and one stale tile the master catalog no longer confirms.
	require.NoError(t, db.Create(&models.ApplicationTile{
		Name: "New App", Identifier: "new-app", CatalogID: "cat-new",
		Source: models.TileSourceCatalog, Available: false,
	}).Error)
	require.NoError(t, db.Create(&models.ApplicationTile{
		Name: "Known App", Identifier: "known-app", CatalogID: "cat-known",
		Source: models.TileSourceCatalog, Available: true, LastSeenAt: &now,
	}).Error)
	require.NoError(t, db.Create(&models.ApplicationTile{
		Name: "Gone App", Identifier: "gone-app",
		Source: models.TileSourceCatalog, Available: true, LastSeenAt: &stale,
	}).Error)

	log, err := svc.Trigger(ctx, &actor.ID, models.SyncTriggerOnDemand)
	require.NoError(t, err)
	svc.Wait()

	closed, err := svc.GetRun(ctx, log.SyncID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncCompleted, closed.Status)
	assert.Equal(t, 1, closed.AppsAdded)
	assert.Equal(t, 1, closed.AppsUpdated)
	assert.Equal(t, 1, closed.AppsMarkedGone)

	var tile models.ApplicationTile
	require.NoError(t, db.Where("identifier = ?", "new-app").First(&tile).Error)
	assert.True(t, tile.Available)
	assert.Equal(t, models.SyncStatusSynced, tile.SyncStatus)
	require.NoError(t, db.Where("identifier = ?", "known-app").First(&tile).Error)
	assert.Equal(t, models.SyncStatusSynced, tile.SyncStatus)
	require.NotNil(t, tile.LastSeenAt)
	require.NoError(t, db.Where("identifier = ?", "gone-app").First(&tile).Error)
	assert.False(t, tile.Available)
	assert.Equal(t, models.SyncStatusUnavailable, tile.SyncStatus)

	// The last-run marker landed in settings.
	settings := repository.NewSettingsRepository(db)
	lastRun, err := settings.Get(ctx, "catalog_sync_last_run")
	require.NoError(t, err)
	require.NotNil(t, lastRun)
}

func TestMergeCatalogFields(t *testing.T) {
	entry := &models.ApplicationTile{
		Name: "Figma", Description: "Design tool", Category: "Design",
		Version: "1.0", Publisher: "Figma Inc", Tags: "design,ui",
	}
	master := &models.ApplicationTile{
		Name: "Figma", Description: "Collaborative design tool", Version: "2.1",
	}

	mergeCatalogFields(entry, master)

	// Populated master fields win, empty ones leave the entry alone.
	assert.Equal(t, "Collaborative design tool", entry.Description)
	assert.Equal(t, "2.1", entry.Version)
	assert.Equal(t, "Design", entry.Category)
	assert.Equal(t, "Figma Inc", entry.Publisher)
	assert.Equal(t, "design,ui", entry.Tags)
}

func TestCatalogSync_RequestTilesSurviveSweep(t *testing.T) {
	db := setupTestDB(t)
	svc := newSyncService(context.Background(), db)
	ctx := context.Background()
	actor := createTestUser(t, db, "admin", models.RoleAdmin)

	// A tile created by request provisioning: no catalog linkage, no
	// last_seen_at.
	require.NoError(t, db.Create(&models.ApplicationTile{
		Name: "Figma", Identifier: "figma",
		Source: models.TileSourceRequest, Available: true,
	}).Error)

	_, err := svc.Trigger(ctx, &actor.ID, models.SyncTriggerOnDemand)
	require.NoError(t, err)
	svc.Wait()

	var tile models.ApplicationTile
	require.NoError(t, db.Where("identifier = ?", "figma").First(&tile).Error)
	assert.True(t, tile.Available)
}

func TestCatalogSync_UpdateSettings(t *testing.T) {
	db := setupTestDB(t)
	svc := newSyncService(context.Background(), db)
	ctx := context.Background()
	actor := createTestUser(t, db, "admin", models.RoleAdmin)

	enabled := false
	freq := 6
	cfg, err := svc.UpdateSettings(ctx, actor.ID, &enabled, &freq)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 6, cfg.FrequencyHours)

	// The change is persisted, not just echoed.
	got, err := svc.LoadSyncConfig(ctx)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, 6, got.FrequencyHours)

	t.Run("rejects out-of-range frequency", func(t *testing.T) {
		bad := 0
		_, err := svc.UpdateSettings(ctx, actor.ID, nil, &bad)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeValidation, appErr.Code)
	})

	t.Run("rejects empty update", func(t *testing.T) {
		_, err := svc.UpdateSettings(ctx, actor.ID, nil, nil)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeValidation, appErr.Code)
	})

	// An audit row recorded the change.
	var auditCount int64
	require.NoError(t, db.Model(&models.AuditLog{}).
		Where("action = ?", "catalog.sync_settings_updated").
		Count(&auditCount).Error)
	assert.Equal(t, int64(1), auditCount)
}

func TestCatalogSync_StatusReturnsLatestRun(t *testing.T) {
	db := setupTestDB(t)
	svc := newSyncService(context.Background(), db)
	ctx := context.Background()
	actor := createTestUser(t, db, "admin", models.RoleAdmin)

	_, err := svc.Status(ctx)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)

	log, err := svc.Trigger(ctx, &actor.ID, models.SyncTriggerOnDemand)
	require.NoError(t, err)
	svc.Wait()

	latest, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, log.SyncID, latest.SyncID)

	logs, err := svc.Logs(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
