package server

import (
	"time"

	"atrium/internal/cache"
	"atrium/internal/models"

	"github.com/gofiber/fiber/v2"
)

const defaultStoreLimit = 100

// GetStore handles GET /api/store, the user-facing listing of available
// tiles. The unfiltered first page is served from the Redis store listing
// cache; filtered or paginated views go straight to the database.
func (s *Server) GetStore(c *fiber.Ctx) error {
	p := parsePagination(c, defaultStoreLimit)
	category := c.Query("category")

	var tiles []models.ApplicationTile
	if category == "" && p.Offset == 0 && p.Limit == defaultStoreLimit {
		err := cache.Aside(c.Context(), cache.StoreListingKey, &tiles, cache.StoreListingTTL, func() error {
			var err error
			tiles, err = s.tileRepo.List(c.Context(), true, "", p.Limit, p.Offset)
			return err
		})
		if err != nil {
			return models.RespondWithError(c, err)
		}
	} else {
		var err error
		tiles, err = s.tileRepo.List(c.Context(), true, category, p.Limit, p.Offset)
		if err != nil {
			return models.RespondWithError(c, err)
		}
	}

	return c.JSON(fiber.Map{
		"tiles": tiles,
		"count": len(tiles),
	})
}

// GetMyApps handles GET /api/apps/me, the caller's active assignments with
// their tiles preloaded.
func (s *Server) GetMyApps(c *fiber.Ctx) error {
	assignments, err := s.assignmentRepo.ListByUser(c.Context(), currentUserID(c))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{
		"assignments": assignments,
		"count":       len(assignments),
	})
}

// LaunchApp handles POST /api/apps/:id/launch where :id is the tile ID. The
// assignment's PIN, when set, must be presented on every launch.
func (s *Server) LaunchApp(c *fiber.Ctx) error {
	tileID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		PIN string `json:"pin"`
	}
	_ = c.BodyParser(&body)

	assignment, err := s.assignmentRepo.GetByUserAndTile(c.Context(), currentUserID(c), tileID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if assignment == nil || assignment.Status != models.AssignmentActive {
		return models.RespondWithError(c, models.NewNotFoundError("Assignment", tileID))
	}

	if !assignment.CheckPIN(body.PIN) {
		return models.RespondWithError(c, models.NewForbiddenError("Invalid launch PIN"))
	}

	tile, err := s.tileRepo.GetByID(c.Context(), tileID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if !tile.Available {
		return models.RespondWithError(c, models.NewConflictError("This application is currently unavailable"))
	}

	now := time.Now()
	if err := s.assignmentRepo.RecordLaunch(c.Context(), assignment.ID, now); err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{
		"launch_url":      tile.LaunchURL,
		"launch_username": assignment.LaunchUsername,
		"launched_at":     now,
	})
}
