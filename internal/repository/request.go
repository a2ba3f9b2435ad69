package repository

import (
	"context"
	"errors"

	"atrium/internal/models"

	"gorm.io/gorm"
)

// RequestRepository defines persistence operations for app requests and
// their transition history.
type RequestRepository interface {
	GetByID(ctx context.Context, id uint) (*models.AppRequest, error)
	Create(ctx context.Context, req *models.AppRequest) error
	ListByRequester(ctx context.Context, requesterID uint, limit, offset int) ([]models.AppRequest, error)
	ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]models.AppRequest, error)
	FindOpenByRequesterAndApp(ctx context.Context, requesterID uint, appIdentifier string) (*models.AppRequest, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uint, expected []string, req *models.AppRequest) (bool, error)
	AppendHistory(ctx context.Context, tx *gorm.DB, h *models.AppRequestHistory) error
	History(ctx context.Context, requestID uint) ([]models.AppRequestHistory, error)
}

type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository returns a new RequestRepository implementation.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) GetByID(ctx context.Context, id uint) (*models.AppRequest, error) {
	var req models.AppRequest
	if err := r.db.WithContext(ctx).Preload("Requester").Preload("DecidedBy").First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

func (r *requestRepository) Create(ctx context.Context, req *models.AppRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// openFirstOrder sorts listings with work still in flight on top: submitted
// (including legacy PENDING) first, then in_review, then everything else,
// newest first within each group.
const openFirstOrder = "CASE status WHEN 'submitted' THEN 0 WHEN 'PENDING' THEN 0 WHEN 'in_review' THEN 1 ELSE 2 END, created_at DESC"

func (r *requestRepository) ListByRequester(ctx context.Context, requesterID uint, limit, offset int) ([]models.AppRequest, error) {
	var reqs []models.AppRequest
	if err := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order(openFirstOrder).
		Limit(limit).Offset(offset).
		Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

func (r *requestRepository) ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]models.AppRequest, error) {
	var reqs []models.AppRequest
	q := r.db.WithContext(ctx).Preload("Requester").Order(openFirstOrder).Limit(limit).Offset(offset)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

// CountByStatus tallies non-deleted requests per status, with legacy
// PENDING rows folded into submitted.
func (r *requestRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&models.AppRequest{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	counts := make(map[string]int64, len(rows))
	for _, rw := range rows {
		status := rw.Status
		if status == "PENDING" {
			status = models.StatusSubmitted
		}
		counts[status] += rw.N
	}
	return counts, nil
}

// FindOpenByRequesterAndApp returns the oldest non-terminal request the user
// has for the given application, or nil when there is none. Oldest first so
// the duplicate guard always reports the same request id.
func (r *requestRepository) FindOpenByRequesterAndApp(ctx context.Context, requesterID uint, appIdentifier string) (*models.AppRequest, error) {
	var req models.AppRequest
	err := r.db.WithContext(ctx).
		Where("requester_id = ? AND app_identifier = ? AND status IN ?", requesterID, appIdentifier, models.OpenStatuses).
		Order("id ASC").
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

// UpdateStatusIf conditionally moves the request to req's new status,
// decision fields, and app binding. The write only lands when the row's
// current status is in expected; the bool result reports whether it did.
// Callers pass the transaction handle so the guard and its side effects
// commit together.
func (r *requestRepository) UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uint, expected []string, req *models.AppRequest) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).Model(&models.AppRequest{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(map[string]any{
			"status":              req.Status,
			"decision_note":       req.DecisionNote,
			"decided_by_id":       req.DecidedByID,
			"decided_at":          req.DecidedAt,
			"app_id":              req.AppID,
			"app_exists_in_store": req.AppExistsInStore,
		})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *requestRepository) AppendHistory(ctx context.Context, tx *gorm.DB, h *models.AppRequestHistory) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Create(h).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *requestRepository) History(ctx context.Context, requestID uint) ([]models.AppRequestHistory, error) {
	var entries []models.AppRequestHistory
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}
