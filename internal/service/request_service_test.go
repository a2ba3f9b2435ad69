package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"atrium/internal/models"
	"atrium/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRequestService_Submit(t *testing.T) {
	db := setupTestDB(t)
	svc := newRequestService(db)
	ctx := context.Background()
	user := createTestUser(t, db, "dana", models.RoleEmployee)

	t.Run("requires app name and justification", func(t *testing.T) {
		_, err := svc.Submit(ctx, user.ID, SubmitRequestInput{AppName: "  ", Justification: "need it"})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeValidation, appErr.Code)

		_, err = svc.Submit(ctx, user.ID, SubmitRequestInput{AppName: "Figma", Justification: ""})
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeValidation, appErr.Code)
	})

	t.Run("creates request with first history row", func(t *testing.T) {
		req, err := svc.Submit(ctx, user.ID, SubmitRequestInput{AppName: "Adobe Photoshop", Justification: "design work"})
		require.NoError(t, err)
		assert.Equal(t, models.StatusSubmitted, req.Status)
		assert.Equal(t, "adobe-photoshop", req.AppIdentifier)

		history, err := svc.History(ctx, user.ID, false, req.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.StatusSubmitted, history[0].ToStatus)
	})

	t.Run("duplicate open request returns the first request id", func(t *testing.T) {
		first, err := svc.Submit(ctx, user.ID, SubmitRequestInput{AppName: "Figma", Justification: "mockups"})
		require.NoError(t, err)

		_, err = svc.Submit(ctx, user.ID, SubmitRequestInput{AppName: "figma", Justification: "again"})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeConflict, appErr.Code)
		assert.Equal(t, first.ID, appErr.Meta["existing_request_id"])

		// Still the first id on a third try.
		_, err = svc.Submit(ctx, user.ID, SubmitRequestInput{AppName: "Figma", Justification: "and again"})
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, first.ID, appErr.Meta["existing_request_id"])
	})

	t.Run("app already in store is refused", func(t *testing.T) {
		require.NoError(t, db.Create(&models.ApplicationTile{
			Name: "Slack", Identifier: "slack", Available: true,
		}).Error)

		_, err := svc.Submit(ctx, user.ID, SubmitRequestInput{AppName: "slack", Justification: "chat"})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeConflict, appErr.Code)
	})
}

func TestRequestService_ApproveProvisionsAndImplements(t *testing.T) {
	db := setupTestDB(t)
	svc := newRequestService(db)
	ctx := context.Background()
	employee := createTestUser(t, db, "kim", models.RoleEmployee)
	approver := createTestUser(t, db, "alex", models.RoleApprover)

	req, err := svc.Submit(ctx, employee.ID, SubmitRequestInput{AppName: "Figma", Justification: "design"})
	require.NoError(t, err)

	got, err := svc.Approve(ctx, approver.ID, req.ID, "approved for design team")
	require.NoError(t, err)
	assert.Equal(t, models.StatusImplemented, got.Status)
	require.NotNil(t, got.DecidedByID)
	assert.Equal(t, approver.ID, *got.DecidedByID)

	// The tile exists and is available, and the request records it.
	var tile models.ApplicationTile
	require.NoError(t, db.Where("identifier = ?", "figma").First(&tile).Error)
	assert.True(t, tile.Available)
	assert.Equal(t, models.TileSourceRequest, tile.Source)
	require.NotNil(t, got.AppID)
	assert.Equal(t, tile.ID, *got.AppID)
	assert.True(t, got.AppExistsInStore)

	// Exactly one active assignment.
	var assignments []models.UserAppAssignment
	require.NoError(t, db.Where("user_id = ? AND tile_id = ?", employee.ID, tile.ID).Find(&assignments).Error)
	require.Len(t, assignments, 1)
	assert.Equal(t, models.AssignmentActive, assignments[0].Status)

	// History covers submitted, approved, implemented in order.
	history, err := svc.History(ctx, approver.ID, true, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.StatusSubmitted, history[0].ToStatus)
	assert.Equal(t, models.StatusApproved, history[1].ToStatus)
	assert.Equal(t, models.StatusImplemented, history[2].ToStatus)

	t.Run("second approval is refused and changes nothing", func(t *testing.T) {
		_, err := svc.Approve(ctx, approver.ID, req.ID, "again")
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeConflict, appErr.Code)

		var count int64
		require.NoError(t, db.Model(&models.UserAppAssignment{}).
			Where("user_id = ? AND tile_id = ?", employee.ID, tile.ID).
			Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("approving an existing tile does not duplicate it", func(t *testing.T) {
		other := createTestUser(t, db, "sam", models.RoleEmployee)
		// Tile is in store now, so a fresh request conflicts up front.
		_, err := svc.Submit(ctx, other.ID, SubmitRequestInput{AppName: "Figma", Justification: "also design"})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeConflict, appErr.Code)

		var tileCount int64
		require.NoError(t, db.Model(&models.ApplicationTile{}).
			Where("identifier = ?", "figma").Count(&tileCount).Error)
		assert.Equal(t, int64(1), tileCount)
	})
}

func TestRequestService_ApproveRevivesHiddenTileAndRevokedAssignment(t *testing.T) {
	db := setupTestDB(t)
	svc := newRequestService(db)
	ctx := context.Background()
	employee := createTestUser(t, db, "noel", models.RoleEmployee)
	approver := createTestUser(t, db, "reese", models.RoleApprover)

	tile := &models.ApplicationTile{
		Name: "Slack", Identifier: "slack",
		Available: false, SyncStatus: models.SyncStatusUnavailable,
	}
	require.NoError(t, db.Create(tile).Error)
	require.NoError(t, db.Create(&models.UserAppAssignment{
		UserID: employee.ID, TileID: tile.ID,
		Status: models.AssignmentRevoked, LaunchUsername: "noel.slack",
	}).Error)

	// The tile is hidden, so a fresh request passes the in-store guard.
	req, err := svc.Submit(ctx, employee.ID, SubmitRequestInput{AppName: "Slack", Justification: "channels"})
	require.NoError(t, err)

	got, err := svc.Approve(ctx, approver.ID, req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusImplemented, got.Status)
	require.NotNil(t, got.AppID)
	assert.Equal(t, tile.ID, *got.AppID)

	// The existing tile is back in the store rather than duplicated.
	var tileCount int64
	require.NoError(t, db.Model(&models.ApplicationTile{}).
		Where("LOWER(name) = ?", "slack").Count(&tileCount).Error)
	assert.Equal(t, int64(1), tileCount)
	var revived models.ApplicationTile
	require.NoError(t, db.First(&revived, tile.ID).Error)
	assert.True(t, revived.Available)

	// The revoked grant is active again with its credentials intact.
	var assignments []models.UserAppAssignment
	require.NoError(t, db.Where("user_id = ? AND tile_id = ?", employee.ID, tile.ID).
		Find(&assignments).Error)
	require.Len(t, assignments, 1)
	assert.Equal(t, models.AssignmentActive, assignments[0].Status)
	assert.Equal(t, "noel.slack", assignments[0].LaunchUsername)
}

func TestRequestService_ApproveBindsTileByName(t *testing.T) {
	db := setupTestDB(t)
	svc := newRequestService(db)
	ctx := context.Background()
	employee := createTestUser(t, db, "sky", models.RoleEmployee)
	approver := createTestUser(t, db, "rowan", models.RoleApprover)

	// Identifier intentionally differs from what the request name derives.
	tile := &models.ApplicationTile{
		Name: "Figma", Identifier: "figma-app", Available: false,
	}
	require.NoError(t, db.Create(tile).Error)

	req, err := svc.Submit(ctx, employee.ID, SubmitRequestInput{AppName: "figma", Justification: "design"})
	require.NoError(t, err)

	got, err := svc.Approve(ctx, approver.ID, req.ID, "")
	require.NoError(t, err)
	require.NotNil(t, got.AppID)
	assert.Equal(t, tile.ID, *got.AppID)

	// The name match wins; no second tile appears under the derived id.
	var count int64
	require.NoError(t, db.Model(&models.ApplicationTile{}).
		Where("identifier = ?", "figma").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRequestService_SubmitCarriesOptionalMetadata(t *testing.T) {
	db := setupTestDB(t)
	svc := newRequestService(db)
	ctx := context.Background()
	employee := createTestUser(t, db, "devon", models.RoleEmployee)

	due := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	req, err := svc.Submit(ctx, employee.ID, SubmitRequestInput{
		AppName:       "Tableau",
		Justification: "quarterly reporting",
		CostCenter:    "CC-4410",
		Priority:      "high",
		DesiredByDate: &due,
		Notes:         "finance team rollout",
	})
	require.NoError(t, err)

	var stored models.AppRequest
	require.NoError(t, db.First(&stored, req.ID).Error)
	assert.Equal(t, "CC-4410", stored.CostCenter)
	assert.Equal(t, "high", stored.Priority)
	require.NotNil(t, stored.DesiredByDate)
	assert.Equal(t, due.Unix(), stored.DesiredByDate.Unix())
	assert.Equal(t, "finance team rollout", stored.Notes)
	assert.False(t, stored.AppExistsInStore)
	assert.Nil(t, stored.AppID)
}

func TestRequestService_DenyRequiresReason(t *testing.T) {
	db := setupTestDB(t)
	svc := newRequestService(db)
	ctx := context.Background()
	employee := createTestUser(t, db, "lee", models.RoleEmployee)
	approver := createTestUser(t, db, "jo", models.RoleApprover)

	req, err := svc.Submit(ctx, employee.ID, SubmitRequestInput{AppName: "Miro", Justification: "boards"})
	require.NoError(t, err)

	_, err = svc.Deny(ctx, approver.ID, req.ID, "   ")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)

	// The request is untouched.
	got, err := svc.Get(ctx, approver.ID, true, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, got.Status)

	denied, err := svc.Deny(ctx, approver.ID, req.ID, "no budget this quarter")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, denied.Status)
	assert.Equal(t, "no budget this quarter", denied.DecisionNote)
}

func TestRequestService_StateMachineClosure(t *testing.T) {
	db := setupTestDB(t)
	svc := newRequestService(db)
	ctx := context.Background()
	employee := createTestUser(t, db, "pat", models.RoleEmployee)
	approver := createTestUser(t, db, "rae", models.RoleApprover)

	submit := func(name string) *models.AppRequest {
		req, err := svc.Submit(ctx, employee.ID, SubmitRequestInput{AppName: name, Justification: "work"})
		require.NoError(t, err)
		return req
	}

	assertConflict := func(t *testing.T, err error) {
		t.Helper()
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeConflict, appErr.Code)
	}

	t.Run("no decisions after cancel", func(t *testing.T) {
		req := submit("App One")
		_, err := svc.Cancel(ctx, employee.ID, req.ID)
		require.NoError(t, err)

		_, err = svc.Approve(ctx, approver.ID, req.ID, "")
		assertConflict(t, err)
		_, err = svc.Deny(ctx, approver.ID, req.ID, "reason")
		assertConflict(t, err)
		_, err = svc.Cancel(ctx, employee.ID, req.ID)
		assertConflict(t, err)
	})

	t.Run("no cancel or re-decision after deny", func(t *testing.T) {
		req := submit("App Two")
		_, err := svc.Deny(ctx, approver.ID, req.ID, "not needed")
		require.NoError(t, err)

		_, err = svc.Cancel(ctx, employee.ID, req.ID)
		assertConflict(t, err)
		_, err = svc.Approve(ctx, approver.ID, req.ID, "")
		assertConflict(t, err)
	})

	t.Run("only the requester cancels", func(t *testing.T) {
		req := submit("App Three")
		_, err := svc.Cancel(ctx, approver.ID, req.ID)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeForbidden, appErr.Code)
	})

	t.Run("review step is recorded", func(t *testing.T) {
		req := submit("App Four")
		got, err := svc.StartReview(ctx, approver.ID, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusInReview, got.Status)

		// in_review is still cancellable by the requester.
		cancelled, err := svc.Cancel(ctx, employee.ID, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
	})
}

// failingAssignments forces the provisioning step to fail.
type failingAssignments struct {
	repository.AssignmentRepository
}

func (f *failingAssignments) Upsert(ctx context.Context, tx *gorm.DB, a *models.UserAppAssignment) error {
	return models.NewInternalError(errors.New("forced upsert failure"))
}

func TestRequestService_ApproveRollsBackOnProvisionFailure(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRequestService(db,
		repository.NewRequestRepository(db),
		repository.NewTileRepository(db),
		&failingAssignments{repository.NewAssignmentRepository(db)},
		repository.NewAuditRepository(db),
	)
	ctx := context.Background()
	employee := createTestUser(t, db, "drew", models.RoleEmployee)
	approver := createTestUser(t, db, "vic", models.RoleApprover)

	req, err := svc.Submit(ctx, employee.ID, SubmitRequestInput{AppName: "Notion", Justification: "docs"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, approver.ID, req.ID, "ok")
	require.Error(t, err)

	// The request is untouched and the tile creation rolled back with it.
	got, err := svc.Get(ctx, employee.ID, false, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, got.Status)

	var tileCount int64
	require.NoError(t, db.Model(&models.ApplicationTile{}).
		Where("identifier = ?", "notion").Count(&tileCount).Error)
	assert.Equal(t, int64(0), tileCount)

	var historyCount int64
	require.NoError(t, db.Model(&models.AppRequestHistory{}).
		Where("request_id = ? AND to_status = ?", req.ID, models.StatusApproved).
		Count(&historyCount).Error)
	assert.Equal(t, int64(0), historyCount)
}

func TestRequestService_LegacyPendingRowsAreDecidable(t *testing.T) {
	db := setupTestDB(t)
	svc := newRequestService(db)
	ctx := context.Background()
	employee := createTestUser(t, db, "quinn", models.RoleEmployee)
	approver := createTestUser(t, db, "morgan", models.RoleApprover)

	req, err := svc.Submit(ctx, employee.ID, SubmitRequestInput{AppName: "Linear", Justification: "tracking"})
	require.NoError(t, err)
	require.NoError(t, db.Exec("UPDATE app_requests SET status = 'PENDING' WHERE id = ?", req.ID).Error)

	denied, err := svc.Deny(ctx, approver.ID, req.ID, "use Jira")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, denied.Status)
}

func TestRequestService_ReviewQueueCounts(t *testing.T) {
	db := setupTestDB(t)
	svc := newRequestService(db)
	ctx := context.Background()
	employee := createTestUser(t, db, "ash", models.RoleEmployee)
	approver := createTestUser(t, db, "blair", models.RoleApprover)

	a, err := svc.Submit(ctx, employee.ID, SubmitRequestInput{AppName: "App A", Justification: "x"})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, employee.ID, SubmitRequestInput{AppName: "App B", Justification: "x"})
	require.NoError(t, err)
	_, err = svc.Deny(ctx, approver.ID, a.ID, "no")
	require.NoError(t, err)

	queue, err := svc.ListForReview(ctx, nil, 50, 0)
	require.NoError(t, err)
	assert.Len(t, queue.Requests, 2)
	assert.Equal(t, int64(1), queue.Counts[models.StatusSubmitted])
	assert.Equal(t, int64(1), queue.Counts[models.StatusRejected])

	// Open requests sort ahead of decided ones.
	assert.Equal(t, models.StatusSubmitted, queue.Requests[0].Status)

	_, err = svc.ListForReview(ctx, []string{"bogus"}, 50, 0)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)
}
