package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"atrium/internal/cache"
	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/observability"
	"atrium/internal/repository"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Defaults used when the corresponding system setting is absent.
const (
	DefaultSyncEnabled        = true
	DefaultSyncFrequencyHours = 24

	// staleAfter is how long a tile may go unconfirmed by the master
	// catalog before the sweep marks it unavailable.
	staleAfter = 24 * time.Hour
)

// SyncConfig is the sync gate, materialized from system settings once per
// trigger so a mid-run settings change cannot affect a run in flight.
type SyncConfig struct {
	Enabled        bool `json:"enabled"`
	FrequencyHours int  `json:"frequency_hours"`
}

// CatalogSyncService reconciles the application store against the master
// catalog and keeps the per-run sync log.
type CatalogSyncService struct {
	db       *gorm.DB
	tiles    repository.TileRepository
	logs     repository.SyncLogRepository
	settings repository.SettingsRepository
	audits   repository.AuditRepository

	// runCtx outlives individual HTTP requests; detached reconciles run
	// against it so server shutdown, not client disconnect, cancels them.
	runCtx context.Context
	wg     sync.WaitGroup

	mu        sync.Mutex
	scheduler *cron.Cron
	entryID   cron.EntryID
}

// NewCatalogSyncService returns a new CatalogSyncService. runCtx should be
// the server's lifetime context.
func NewCatalogSyncService(runCtx context.Context, db *gorm.DB, tiles repository.TileRepository, logs repository.SyncLogRepository, settings repository.SettingsRepository, audits repository.AuditRepository) *CatalogSyncService {
	return &CatalogSyncService{
		db:       db,
		tiles:    tiles,
		logs:     logs,
		settings: settings,
		audits:   audits,
		runCtx:   runCtx,
	}
}

// LoadSyncConfig reads the sync gate from system settings, applying defaults
// for absent keys.
func (s *CatalogSyncService) LoadSyncConfig(ctx context.Context) (SyncConfig, error) {
	cfg := SyncConfig{Enabled: DefaultSyncEnabled, FrequencyHours: DefaultSyncFrequencyHours}

	enabled, err := s.settings.Get(ctx, models.SettingCatalogSyncEnabled)
	if err != nil {
		return cfg, err
	}
	if enabled != nil {
		cfg.Enabled = enabled.Bool(DefaultSyncEnabled)
	}

	freq, err := s.settings.Get(ctx, models.SettingCatalogSyncFrequency)
	if err != nil {
		return cfg, err
	}
	if freq != nil {
		cfg.FrequencyHours = freq.Int(DefaultSyncFrequencyHours)
	}

	return cfg, nil
}

// Trigger starts a catalog sync run. The running log row is created and
// returned immediately; reconciliation happens in a detached goroutine so
// the caller never waits on it.
func (s *CatalogSyncService) Trigger(ctx context.Context, actorID *uint, trigger string) (*models.CatalogSyncLog, error) {
	cfg, err := s.LoadSyncConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, models.NewSyncDisabledError()
	}

	log := &models.CatalogSyncLog{
		SyncID:        uuid.NewString(),
		Status:        models.SyncRunning,
		Trigger:       trigger,
		TriggeredByID: actorID,
		StartedAt:     time.Now(),
	}
	if err := s.logs.Create(ctx, log); err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "catalog sync triggered",
		"sync_id", log.SyncID, "trigger", trigger)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Reconcile(s.runCtx, log)
	}()

	return log, nil
}

// Reconcile runs one sync pass and closes the log exactly once. Master
// candidates not in the current store view are added (available + synced);
// candidates already in the store get a descriptive-field merge and a
// sync_status refresh; available tiles unseen for longer than staleAfter
// are swept. The apply phase runs in a single transaction; the failed-log
// write happens outside it so a rollback cannot swallow the failure record.
func (s *CatalogSyncService) Reconcile(ctx context.Context, log *models.CatalogSyncLog) {
	span, ctx := observability.NewSpan(ctx, "catalog.sync")
	span.AddAttributes(attribute.String("sync.id", log.SyncID))
	defer span.End()

	var added, updated, gone int64
	var entryErrors models.SyncErrorList

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		candidates, err := s.tiles.ListMasterCandidates(ctx, tx)
		if err != nil {
			return err
		}
		visible, err := s.tiles.ListAvailableTx(ctx, tx)
		if err != nil {
			return err
		}
		store := make(map[string]*models.ApplicationTile, len(visible))
		for i := range visible {
			store[visible[i].Identifier] = &visible[i]
		}

		for i := range candidates {
			master := &candidates[i]

			entry, inStore := store[master.Identifier]
			if !inStore {
				master.Available = true
				master.SyncStatus = models.SyncStatusSynced
				master.LastSeenAt = &now
				if err := s.tiles.SaveTx(ctx, tx, master); err != nil {
					entryErrors = append(entryErrors, fmt.Sprintf("catalog entry %s: %v", master.CatalogID, err))
					continue
				}
				added++
				continue
			}

			mergeCatalogFields(entry, master)
			entry.SyncStatus = models.SyncStatusSynced
			entry.LastSeenAt = &now
			if err := s.tiles.SaveTx(ctx, tx, entry); err != nil {
				entryErrors = append(entryErrors, fmt.Sprintf("catalog entry %s: %v", master.CatalogID, err))
				continue
			}
			updated++
		}

		gone, err = s.tiles.MarkUnavailableNotSeenSince(ctx, tx, now.Add(-staleAfter))
		return err
	})

	finished := time.Now()
	log.FinishedAt = &finished
	log.EntryErrors = entryErrors

	if err != nil {
		span.SetError(err)
		log.Status = models.SyncFailed
		log.ErrorMessage = err.Error()
		if uerr := s.logs.Update(ctx, log); uerr != nil {
			middleware.Logger.ErrorContext(ctx, "failed to close sync log",
				"sync_id", log.SyncID, "error", uerr.Error())
		}
		middleware.CatalogSyncRuns.WithLabelValues(models.SyncFailed).Inc()
		middleware.Logger.ErrorContext(ctx, "catalog sync failed",
			"sync_id", log.SyncID, "error", err.Error())
		return
	}

	log.Status = models.SyncCompleted
	log.AppsAdded = int(added)
	log.AppsUpdated = int(updated)
	log.AppsMarkedGone = int(gone)
	if uerr := s.logs.Update(ctx, log); uerr != nil {
		middleware.Logger.ErrorContext(ctx, "failed to close sync log",
			"sync_id", log.SyncID, "error", uerr.Error())
		return
	}

	if _, serr := s.settings.Set(ctx, "catalog_sync_last_run", finished.UTC().Format(time.RFC3339)); serr != nil {
		middleware.Logger.WarnContext(ctx, "failed to record last sync run time",
			"sync_id", log.SyncID, "error", serr.Error())
	}
	cache.InvalidateStoreListing(ctx)

	middleware.CatalogSyncRuns.WithLabelValues(models.SyncCompleted).Inc()
	middleware.Logger.InfoContext(ctx, "catalog sync completed",
		"sync_id", log.SyncID,
		"added", added, "updated", updated, "marked_unavailable", gone,
		"entry_errors", len(entryErrors))
}

// mergeCatalogFields copies the master record's descriptive fields onto the
// store entry. Empty master values never clobber an existing value.
func mergeCatalogFields(entry, master *models.ApplicationTile) {
	if master.Name != "" {
		entry.Name = master.Name
	}
	if master.Description != "" {
		entry.Description = master.Description
	}
	if master.Category != "" {
		entry.Category = master.Category
	}
	if master.Version != "" {
		entry.Version = master.Version
	}
	if master.Publisher != "" {
		entry.Publisher = master.Publisher
	}
	if master.Tags != "" {
		entry.Tags = master.Tags
	}
}

// Wait blocks until all in-flight reconciles finish. Called on shutdown and
// by tests.
func (s *CatalogSyncService) Wait() {
	s.wg.Wait()
}

// Status returns the most recent sync run, running or finished.
func (s *CatalogSyncService) Status(ctx context.Context) (*models.CatalogSyncLog, error) {
	if running, err := s.logs.LatestRunning(ctx); err != nil {
		return nil, err
	} else if running != nil {
		return running, nil
	}

	logs, err := s.logs.List(ctx, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, models.NewNotFoundError("Sync run", "latest")
	}
	return &logs[0], nil
}

// GetRun returns one sync run by its sync_id.
func (s *CatalogSyncService) GetRun(ctx context.Context, syncID string) (*models.CatalogSyncLog, error) {
	return s.logs.GetBySyncID(ctx, syncID)
}

// Logs returns the run history, newest first.
func (s *CatalogSyncService) Logs(ctx context.Context, limit, offset int) ([]models.CatalogSyncLog, error) {
	return s.logs.List(ctx, limit, offset)
}

// UpdateSettings upserts the sync gate settings and reschedules the cron
// entry to match the new frequency.
func (s *CatalogSyncService) UpdateSettings(ctx context.Context, actorID uint, enabled *bool, frequencyHours *int) (SyncConfig, error) {
	if enabled == nil && frequencyHours == nil {
		return SyncConfig{}, models.NewValidationError("Nothing to update: provide enabled and/or frequency_hours")
	}
	if frequencyHours != nil && (*frequencyHours < 1 || *frequencyHours > 168) {
		return SyncConfig{}, models.NewValidationError("frequency_hours must be between 1 and 168")
	}

	if enabled != nil {
		if _, err := s.settings.Set(ctx, models.SettingCatalogSyncEnabled, *enabled); err != nil {
			return SyncConfig{}, err
		}
	}
	if frequencyHours != nil {
		if _, err := s.settings.Set(ctx, models.SettingCatalogSyncFrequency, *frequencyHours); err != nil {
			return SyncConfig{}, err
		}
	}

	cfg, err := s.LoadSyncConfig(ctx)
	if err != nil {
		return SyncConfig{}, err
	}

	if err := s.audits.Record(ctx, nil, &models.AuditLog{
		ActorID: actorID,
		Action:  "catalog.sync_settings_updated",
		Target:  "system_settings",
		Detail:  fmt.Sprintf("enabled=%t frequency_hours=%d", cfg.Enabled, cfg.FrequencyHours),
	}); err != nil {
		return SyncConfig{}, err
	}

	s.reschedule(cfg)
	return cfg, nil
}

// StartScheduler begins scheduled sync runs at the configured cadence.
func (s *CatalogSyncService) StartScheduler(ctx context.Context) error {
	cfg, err := s.LoadSyncConfig(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler = cron.New()
	id, err := s.scheduler.AddFunc(fmt.Sprintf("@every %dh", cfg.FrequencyHours), s.scheduledRun)
	if err != nil {
		return err
	}
	s.entryID = id
	s.scheduler.Start()

	middleware.Logger.Info("catalog sync scheduler started",
		"frequency_hours", cfg.FrequencyHours, "enabled", cfg.Enabled)
	return nil
}

// StopScheduler stops scheduled runs and waits for an executing entry.
func (s *CatalogSyncService) StopScheduler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
		s.scheduler = nil
	}
}

func (s *CatalogSyncService) scheduledRun() {
	_, err := s.Trigger(s.runCtx, nil, models.SyncTriggerScheduled)
	if err != nil {
		// A disabled gate is the expected way to pause the schedule.
		middleware.Logger.Info("scheduled catalog sync skipped", "reason", err.Error())
	}
}

func (s *CatalogSyncService) reschedule(cfg SyncConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return
	}

	s.scheduler.Remove(s.entryID)
	id, err := s.scheduler.AddFunc(fmt.Sprintf("@every %dh", cfg.FrequencyHours), s.scheduledRun)
	if err != nil {
		middleware.Logger.Error("failed to reschedule catalog sync", "error", err.Error())
		return
	}
	s.entryID = id
}
