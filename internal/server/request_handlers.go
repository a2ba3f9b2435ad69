package server

import (
	"strings"

	"atrium/internal/models"
	"atrium/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateRequest handles POST /api/requests
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	var input service.SubmitRequestInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, models.NewValidationError("Invalid request body"))
	}

	req, err := s.requestService.Submit(c.Context(), currentUserID(c), input)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(req)
}

// GetRequests handles GET /api/requests. Employees always see their own
// requests; reviewers may pass all=true to see everyone's, optionally
// filtered by status.
func (s *Server) GetRequests(c *fiber.Ctx) error {
	p := parsePagination(c, 25)

	if c.QueryBool("all") && s.canReview(c) {
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

	reqs, err := s.requestService.ListOwn(c.Context(), currentUserID(c), p.Limit, p.Offset)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(fiber.Map{
		"requests": reqs,
		"limit":    p.Limit,
		"offset":   p.Offset,
	})
}

// GetRequest handles GET /api/requests/:id, returning the request with its
// ordered transition history.
func (s *Server) GetRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.requestService.Get(c.Context(), currentUserID(c), s.canReview(c), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	history, err := s.requestService.History(c.Context(), currentUserID(c), s.canReview(c), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	return c.JSON(fiber.Map{
		"request": req,
		"history": history,
	})
}

// CancelRequest handles DELETE /api/requests/:id
func (s *Server) CancelRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.requestService.Cancel(c.Context(), currentUserID(c), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(req)
}

// statusFilters parses the comma-separated status query parameter.
func statusFilters(c *fiber.Ctx) []string {
	raw := strings.TrimSpace(c.Query("status"))
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
