package server

import (
	"atrium/internal/models"

	"github.com/gofiber/fiber/v2"
)

// TriggerCatalogSync handles POST /api/catalog/sync. The response carries
// the sync_id of the run now in flight; reconciliation continues after the
// response is sent and is observable via the status endpoint.
func (s *Server) TriggerCatalogSync(c *fiber.Ctx) error {
	actorID := currentUserID(c)

	log, err := s.syncService.Trigger(c.Context(), &actorID, models.SyncTriggerOnDemand)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{
		"sync_id": log.SyncID,
		"status":  log.Status,
	})
}

// GetCatalogSyncStatus handles GET /api/catalog/sync/status. A specific run
// can be requested with ?sync_id=; otherwise the latest run is returned,
// preferring one still in flight.
func (s *Server) GetCatalogSyncStatus(c *fiber.Ctx) error {
	if syncID := c.Query("sync_id"); syncID != "" {
		run, err := s.syncService.GetRun(c.Context(), syncID)
		if err != nil {
			return models.RespondWithError(c, err)
		}
		return c.JSON(run)
	}

	run, err := s.syncService.Status(c.Context())
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(run)
}

// GetCatalogSyncLogs handles GET /api/catalog/sync/logs
func (s *Server) GetCatalogSyncLogs(c *fiber.Ctx) error {
	p := parsePagination(c, 25)

	logs, err := s.syncService.Logs(c.Context(), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{
		"logs":   logs,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// UpdateCatalogSyncSettings handles PUT /api/catalog/sync/settings
func (s *Server) UpdateCatalogSyncSettings(c *fiber.Ctx) error {
	var body struct {
		Enabled        *bool `json:"enabled"`
		FrequencyHours *int  `json:"frequency_hours"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	cfg, err := s.syncService.UpdateSettings(c.Context(), currentUserID(c), body.Enabled, body.FrequencyHours)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(cfg)
}
