package server

import (
	"fmt"
	"strings"

	"atrium/internal/middleware"
	"atrium/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetAdminTiles handles GET /api/admin/tiles, including unavailable tiles.
func (s *Server) GetAdminTiles(c *fiber.Ctx) error {
	p := parsePagination(c, 50)

	tiles, err := s.tileRepo.List(c.Context(), false, c.Query("category"), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{
		"tiles": tiles,
		"count": len(tiles),
	})
}

// CreateTile handles POST /api/admin/tiles
func (s *Server) CreateTile(c *fiber.Ctx) error {
	var body struct {
		Name        string `json:"name"`
		Identifier  string `json:"identifier"`
		CatalogID   string `json:"catalog_id"`
		Description string `json:"description"`
		Category    string `json:"category"`
		IconURL     string `json:"icon_url"`
		LaunchURL   string `json:"launch_url"`
		Available   *bool  `json:"available"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		return models.RespondWithError(c, models.NewValidationError("Tile name is required"))
	}
	if body.Identifier == "" {
		body.Identifier = models.DeriveIdentifier(body.Name)
	}

	tile := &models.ApplicationTile{
		Name:        body.Name,
		Identifier:  body.Identifier,
		CatalogID:   body.CatalogID,
		Description: body.Description,
		Category:    body.Category,
		IconURL:     body.IconURL,
		LaunchURL:   body.LaunchURL,
		Source:      models.TileSourceManual,
		Available:   body.Available == nil || *body.Available,
	}
	if err := s.tileRepo.Create(c.Context(), tile); err != nil {
		return models.RespondWithError(c, err)
	}

	s.recordAudit(c, "tile.created", fmt.Sprintf("tile:%d", tile.ID), tile.Identifier)
	return c.Status(fiber.StatusCreated).JSON(tile)
}

// UpdateTile handles PUT /api/admin/tiles/:id
func (s *Server) UpdateTile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	tile, err := s.tileRepo.GetByID(c.Context(), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Category    *string `json:"category"`
		IconURL     *string `json:"icon_url"`
		LaunchURL   *string `json:"launch_url"`
		Available   *bool   `json:"available"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			return models.RespondWithError(c, models.NewValidationError("Tile name cannot be empty"))
		}
		tile.Name = name
	}
	if body.Description != nil {
		tile.Description = *body.Description
	}
	if body.Category != nil {
		tile.Category = *body.Category
	}
	if body.IconURL != nil {
		tile.IconURL = *body.IconURL
	}
	if body.LaunchURL != nil {
		tile.LaunchURL = *body.LaunchURL
	}
	if body.Available != nil {
		tile.Available = *body.Available
	}

	if err := s.tileRepo.Update(c.Context(), tile); err != nil {
		return models.RespondWithError(c, err)
	}

	s.recordAudit(c, "tile.updated", fmt.Sprintf("tile:%d", tile.ID), tile.Identifier)
	return c.JSON(tile)
}

// DeleteTile handles DELETE /api/admin/tiles/:id
func (s *Server) DeleteTile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.tileRepo.Delete(c.Context(), id); err != nil {
		return models.RespondWithError(c, err)
	}

	s.recordAudit(c, "tile.deleted", fmt.Sprintf("tile:%d", id), "")
	return c.JSON(fiber.Map{"message": "Tile deleted"})
}

// GrantAssignment handles POST /api/admin/assignments, a direct grant
// outside the request lifecycle. Launch username and PIN are optional; the
// PIN is stored only as a bcrypt hash.
func (s *Server) GrantAssignment(c *fiber.Ctx) error {
	var body struct {
		UserID         uint   `json:"user_id"`
		TileID         uint   `json:"tile_id"`
		LaunchUsername string `json:"launch_username"`
		PIN            string `json:"pin"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}
	if body.UserID == 0 || body.TileID == 0 {
		return models.RespondWithError(c, models.NewValidationError("user_id and tile_id are required"))
	}

	if _, err := s.userRepo.GetByID(c.Context(), body.UserID); err != nil {
		return models.RespondWithError(c, err)
	}
	if _, err := s.tileRepo.GetByID(c.Context(), body.TileID); err != nil {
		return models.RespondWithError(c, err)
	}

	actorID := currentUserID(c)

	// A revoked grant for the same (user, tile) pair is re-activated rather
	// than duplicated; the unique index forbids a second row anyway.
	assignment, err := s.assignmentRepo.GetByUserAndTile(c.Context(), body.UserID, body.TileID)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if assignment == nil {
		assignment = &models.UserAppAssignment{
			UserID: body.UserID,
			TileID: body.TileID,
		}
	}
	assignment.Status = models.AssignmentActive
	assignment.GrantedBy = &actorID
	assignment.SourceType = "manual"
	if body.LaunchUsername != "" {
		assignment.LaunchUsername = body.LaunchUsername
	}
	if body.PIN != "" {
		if err := assignment.SetPIN(body.PIN); err != nil {
			return models.RespondWithError(c, models.NewInternalError(err))
		}
	}

	if err := s.assignmentRepo.Save(c.Context(), assignment); err != nil {
		return models.RespondWithError(c, err)
	}

	s.recordAudit(c, "assignment.granted",
		fmt.Sprintf("assignment:%d", assignment.ID),
		fmt.Sprintf("user:%d tile:%d", body.UserID, body.TileID))
	return c.Status(fiber.StatusCreated).JSON(assignment)
}

// RevokeAssignment handles DELETE /api/admin/assignments/:id
func (s *Server) RevokeAssignment(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.assignmentRepo.Revoke(c.Context(), id); err != nil {
		return models.RespondWithError(c, err)
	}

	s.recordAudit(c, "assignment.revoked", fmt.Sprintf("assignment:%d", id), "")
	return c.JSON(fiber.Map{"message": "Assignment revoked"})
}

// recordAudit writes an audit row for an admin action. Audit failures are
// logged, not surfaced; the action itself already succeeded.
func (s *Server) recordAudit(c *fiber.Ctx, action, target, detail string) {
	if err := s.auditRepo.Record(c.Context(), nil, &models.AuditLog{
		ActorID: currentUserID(c),
		Action:  action,
		Target:  target,
		Detail:  detail,
	}); err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "audit write failed",
			"action", action, "error", err.Error())
	}
}
