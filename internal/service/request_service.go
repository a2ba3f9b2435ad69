// Package service implements the portal's business logic on top of the
// repository layer.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/repository"

	"gorm.io/gorm"
)

// RequestService drives the app request lifecycle: submission, review,
// decision, and provisioning.
type RequestService struct {
	db          *gorm.DB
	requests    repository.RequestRepository
	tiles       repository.TileRepository
	assignments repository.AssignmentRepository
	audits      repository.AuditRepository
}

// NewRequestService returns a new RequestService.
func NewRequestService(db *gorm.DB, requests repository.RequestRepository, tiles repository.TileRepository, assignments repository.AssignmentRepository, audits repository.AuditRepository) *RequestService {
	return &RequestService{
		db:          db,
		requests:    requests,
		tiles:       tiles,
		assignments: assignments,
		audits:      audits,
	}
}

// SubmitRequestInput is the payload for a new app request. Everything past
// the name and justification is optional metadata carried through for the
// reviewer.
type SubmitRequestInput struct {
	AppName       string     `json:"app_name"`
	Justification string     `json:"justification"`
	CostCenter    string     `json:"cost_center"`
	Priority      string     `json:"priority"`
	DesiredByDate *time.Time `json:"desired_by_date"`
	Notes         string     `json:"notes"`
}

// audit records a lifecycle action against the request inside the caller's
// transaction.
func (s *RequestService) audit(ctx context.Context, tx *gorm.DB, actorID uint, action string, requestID uint, detail string) error {
	return s.audits.Record(ctx, tx, &models.AuditLog{
		ActorID: actorID,
		Action:  action,
		Target:  fmt.Sprintf("app_request:%d", requestID),
		Detail:  detail,
	})
}

// reviewable is the set of statuses a reviewer may decide from.
var reviewable = []string{models.StatusSubmitted, models.StatusInReview}

// expandLegacy widens an expected-status list so rows still carrying the
// pre-rework PENDING marker satisfy a submitted precondition.
func expandLegacy(statuses []string) []string {
	out := make([]string, 0, len(statuses)+1)
	for _, s := range statuses {
		out = append(out, s)
		if s == models.StatusSubmitted {
			out = append(out, "PENDING")
		}
	}
	return out
}

// Submit creates a new app request in the submitted status. A user may hold
// at most one open request per application; a duplicate is refused with a
// conflict carrying the existing request's id.
func (s *RequestService) Submit(ctx context.Context, requesterID uint, input SubmitRequestInput) (*models.AppRequest, error) {
	appName := strings.TrimSpace(input.AppName)
	if appName == "" {
		return nil, models.NewValidationError("Application name is required")
	}
	if strings.TrimSpace(input.Justification) == "" {
		return nil, models.NewValidationError("Justification is required")
	}

	identifier := models.DeriveIdentifier(appName)

	inStore, err := s.tiles.FindStoreVisible(ctx, appName, identifier)
	if err != nil {
		return nil, err
	}
	if inStore != nil {
		return nil, models.NewConflictError("This application is already available in the store").
			WithMeta(map[string]any{"tile_id": inStore.ID})
	}

	existing, err := s.requests.FindOpenByRequesterAndApp(ctx, requesterID, identifier)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("You already have an open request for this application").
			WithMeta(map[string]any{
				"existing_request_id": existing.ID,
				"status":              existing.Status,
			})
	}

	req := &models.AppRequest{
		RequesterID:   requesterID,
		AppName:       appName,
		AppIdentifier: identifier,
		Justification: strings.TrimSpace(input.Justification),
		CostCenter:    strings.TrimSpace(input.CostCenter),
		Priority:      strings.TrimSpace(input.Priority),
		DesiredByDate: input.DesiredByDate,
		Notes:         strings.TrimSpace(input.Notes),
		Status:        models.StatusSubmitted,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return models.NewInternalError(err)
		}
		if err := s.requests.AppendHistory(ctx, tx, &models.AppRequestHistory{
			RequestID:  req.ID,
			FromStatus: "",
			ToStatus:   models.StatusSubmitted,
			ActorID:    requesterID,
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, requesterID, "request.submitted", req.ID, identifier)
	})
	if err != nil {
		return nil, err
	}

	middleware.RequestTransitions.WithLabelValues(models.StatusSubmitted).Inc()
	middleware.Logger.InfoContext(ctx, "app request submitted",
		"request_id", req.ID, "app_identifier", identifier)
	return req, nil
}

// StartReview moves a submitted request into review.
func (s *RequestService) StartReview(ctx context.Context, actorID, requestID uint) (*models.AppRequest, error) {
	return s.transition(ctx, actorID, requestID, []string{models.StatusSubmitted}, models.StatusInReview, "")
}

// Approve decides a request positively and provisions access in the same
// transaction: the tile is resolved or created, the assignment is upserted,
// and the request lands in implemented. If any step fails the request stays
// untouched in its prior status.
func (s *RequestService) Approve(ctx context.Context, actorID, requestID uint, note string) (*models.AppRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		approved := *req
		approved.Status = models.StatusApproved
		approved.DecisionNote = note
		approved.DecidedByID = &actorID
		approved.DecidedAt = &now

		ok, err := s.requests.UpdateStatusIf(ctx, tx, requestID, expandLegacy(reviewable), &approved)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewConflictError("request is not awaiting a decision")
		}
		if err := s.requests.AppendHistory(ctx, tx, &models.AppRequestHistory{
			RequestID:  requestID,
			FromStatus: req.Status,
			ToStatus:   models.StatusApproved,
			ActorID:    actorID,
			Note:       note,
		}); err != nil {
			return err
		}

		req.DecidedByID = &actorID
		if err := s.provision(ctx, tx, req); err != nil {
			return err
		}

		implemented := approved
		implemented.Status = models.StatusImplemented
		implemented.AppID = req.AppID
		implemented.AppExistsInStore = req.AppExistsInStore
		ok, err = s.requests.UpdateStatusIf(ctx, tx, requestID, []string{models.StatusApproved}, &implemented)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewConflictError("request left the approved status unexpectedly")
		}
		if err := s.requests.AppendHistory(ctx, tx, &models.AppRequestHistory{
			RequestID:  requestID,
			FromStatus: models.StatusApproved,
			ToStatus:   models.StatusImplemented,
			ActorID:    actorID,
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, actorID, "request.approved", requestID,
			fmt.Sprintf("%s app_id=%d", req.AppIdentifier, *req.AppID))
	})
	if err != nil {
		return nil, err
	}

	middleware.RequestTransitions.WithLabelValues(models.StatusApproved).Inc()
	middleware.RequestTransitions.WithLabelValues(models.StatusImplemented).Inc()
	middleware.Logger.InfoContext(ctx, "app request approved and provisioned",
		"request_id", requestID, "app_identifier", req.AppIdentifier)

	return s.requests.GetByID(ctx, requestID)
}

// provision binds the request to its application tile and grants the
// requester an assignment. Resolution order: an already bound app id wins;
// else an existing tile matching by case-insensitive name or identifier,
// flipped back into the store when hidden; else a new tile created from the
// request. Both writes are idempotent so a replay changes nothing.
func (s *RequestService) provision(ctx context.Context, tx *gorm.DB, req *models.AppRequest) error {
	if req.AppID == nil || !req.AppExistsInStore {
		tile, err := s.tiles.FindByNameOrIdentifier(ctx, tx, req.AppName, req.AppIdentifier)
		if err != nil {
			return err
		}
		switch {
		case tile == nil:
			tile = &models.ApplicationTile{
				Name:       req.AppName,
				Identifier: req.AppIdentifier,
				Source:     models.TileSourceRequest,
				Available:  true,
				SyncStatus: models.SyncStatusPending,
			}
			if err := s.tiles.FirstOrCreateByIdentifier(ctx, tx, tile); err != nil {
				return err
			}
		case !tile.Available:
			// The granted assignment must be launchable, so a hidden tile
			// comes back into the store.
			tile.Available = true
			tile.SyncStatus = models.SyncStatusPending
			if err := s.tiles.SaveTx(ctx, tx, tile); err != nil {
				return err
			}
		}
		req.AppID = &tile.ID
		req.AppExistsInStore = true
	}

	assignment := &models.UserAppAssignment{
		UserID:     req.RequesterID,
		TileID:     *req.AppID,
		Status:     models.AssignmentActive,
		GrantedBy:  req.DecidedByID,
		SourceType: "request",
	}
	if err := s.assignments.Upsert(ctx, tx, assignment); err != nil {
		return err
	}

	middleware.ProvisionedAssignments.Inc()
	return nil
}

// Deny rejects a request. A reason is mandatory and is preserved on both the
// request and its history entry.
func (s *RequestService) Deny(ctx context.Context, actorID, requestID uint, reason string) (*models.AppRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, models.NewValidationError("A reason is required to deny a request")
	}
	return s.transition(ctx, actorID, requestID, reviewable, models.StatusRejected, strings.TrimSpace(reason))
}

// Cancel withdraws the requester's own request. Only the requester may
// cancel, and only before a decision is made.
func (s *RequestService) Cancel(ctx context.Context, requesterID, requestID uint) (*models.AppRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requesterID {
		return nil, models.NewForbiddenError("Only the requester can cancel a request")
	}
	return s.transition(ctx, requesterID, requestID, reviewable, models.StatusCancelled, "")
}

// transition performs a guarded single-step status change with its history
// entry in one transaction.
func (s *RequestService) transition(ctx context.Context, actorID, requestID uint, expected []string, to, note string) (*models.AppRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updated := *req
	updated.Status = to
	if to == models.StatusRejected {
		updated.DecisionNote = note
		updated.DecidedByID = &actorID
		updated.DecidedAt = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.requests.UpdateStatusIf(ctx, tx, requestID, expandLegacy(expected), &updated)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewConflictError("request status does not allow this transition")
		}
		if err := s.requests.AppendHistory(ctx, tx, &models.AppRequestHistory{
			RequestID:  requestID,
			FromStatus: req.Status,
			ToStatus:   to,
			ActorID:    actorID,
			Note:       note,
		}); err != nil {
			return err
		}
		return s.audit(ctx, tx, actorID, "request."+to, requestID, note)
	})
	if err != nil {
		return nil, err
	}

	middleware.RequestTransitions.WithLabelValues(to).Inc()
	middleware.Logger.InfoContext(ctx, "app request transitioned",
		"request_id", requestID, "to_status", to)

	return s.requests.GetByID(ctx, requestID)
}

// Get returns a request visible to the caller: the requester sees their own,
// reviewers see everything.
func (s *RequestService) Get(ctx context.Context, callerID uint, canReview bool, requestID uint) (*models.AppRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != callerID && !canReview {
		return nil, models.NewNotFoundError("Request", requestID)
	}
	return req, nil
}

// ListOwn returns the caller's requests, newest first.
func (s *RequestService) ListOwn(ctx context.Context, requesterID uint, limit, offset int) ([]models.AppRequest, error) {
	return s.requests.ListByRequester(ctx, requesterID, limit, offset)
}

// ReviewQueue bundles the reviewer listing with per-status counts.
type ReviewQueue struct {
	Requests []models.AppRequest `json:"requests"`
	Counts   map[string]int64    `json:"counts"`
}

// ListForReview returns requests filtered by status for reviewers, together
// with the status counts the review dashboard shows.
func (s *RequestService) ListForReview(ctx context.Context, statuses []string, limit, offset int) (*ReviewQueue, error) {
	for _, status := range statuses {
		if !validStatusFilter(status) {
			return nil, models.NewValidationError("Unknown status filter: " + status)
		}
	}

	reqs, err := s.requests.ListByStatus(ctx, expandLegacy(statuses), limit, offset)
	if err != nil {
		return nil, err
	}
	counts, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &ReviewQueue{Requests: reqs, Counts: counts}, nil
}

// History returns the request's transition log, oldest first. Visibility
// follows the same rule as Get.
func (s *RequestService) History(ctx context.Context, callerID uint, canReview bool, requestID uint) ([]models.AppRequestHistory, error) {
	if _, err := s.Get(ctx, callerID, canReview, requestID); err != nil {
		return nil, err
	}
	return s.requests.History(ctx, requestID)
}

func validStatusFilter(status string) bool {
	switch status {
	case models.StatusSubmitted, models.StatusInReview, models.StatusApproved,
		models.StatusRejected, models.StatusImplemented, models.StatusCancelled:
		return true
	}
	return false
}
