package server

import (
	"atrium/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetAdminRequests handles GET /api/admin/requests, the review queue with
// per-status counts. Open requests sort first.
func (s *Server) GetAdminRequests(c *fiber.Ctx) error {
	p := parsePagination(c, 25)

	queue, err := s.requestService.ListForReview(c.Context(), statusFilters(c), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{
		"requests": queue.Requests,
		"counts":   queue.Counts,
		"limit":    p.Limit,
		"offset":   p.Offset,
	})
}

// StartRequestReview handles POST /api/admin/requests/:id/review
func (s *Server) StartRequestReview(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.requestService.StartReview(c.Context(), currentUserID(c), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(req)
}

// ApproveRequest handles POST /api/admin/requests/:id/approve. The response
// reports whether provisioning created a new tile or reused an existing one.
func (s *Server) ApproveRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Note string `json:"note"`
	}
	// An empty body is fine; the approval note is optional.
	_ = c.BodyParser(&body)

	req, err := s.requestService.Get(c.Context(), currentUserID(c), true, id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	existing, err := s.tileRepo.GetByIdentifier(c.Context(), req.AppIdentifier)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	approved, err := s.requestService.Approve(c.Context(), currentUserID(c), id, body.Note)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{
		"app_added": existing == nil,
		"status":    approved.Status,
		"request":   approved,
	})
}

// DenyRequest handles POST /api/admin/requests/:id/deny
func (s *Server) DenyRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	req, err := s.requestService.Deny(c.Context(), currentUserID(c), id, body.Reason)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(req)
}
