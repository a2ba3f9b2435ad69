package server

import (
	"net/http"
	"testing"

	"atrium/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLifecycleOverHTTP(t *testing.T) {
	s, app := newTestServer(t)
	employee := createTestUser(t, s.db, "employee", models.RoleEmployee)
	approver := createTestUser(t, s.db, "approver", models.RoleApprover)
	empAuth := authHeader(t, s, employee)
	appAuth := authHeader(t, s, approver)

	status, body := doJSON(t, app, http.MethodPost, "/api/requests", empAuth,
		`{"app_name":"Figma","justification":"Design work"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.StatusSubmitted, body["status"])
	requestID := body["id"].(float64)

	t.Run("duplicate open request returns 400 with the first request's id", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, "/api/requests", empAuth,
			`{"app_name":"Figma","justification":"Still need it"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, models.CodeConflict, body["code"])

		meta, ok := body["meta"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, requestID, meta["existing_request_id"])
		assert.Equal(t, models.StatusSubmitted, meta["status"])
	})

	t.Run("requester sees the request with its history", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodGet, "/api/requests/1", empAuth, "")
		require.Equal(t, http.StatusOK, status)

		history, ok := body["history"].([]any)
		require.True(t, ok)
		assert.Len(t, history, 1)
	})

	t.Run("employee cannot reach the review queue", func(t *testing.T) {
		status, _ := doJSON(t, app, http.MethodGet, "/api/admin/requests", empAuth, "")
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("approver sees the review queue with counts", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodGet, "/api/admin/requests", appAuth, "")
		require.Equal(t, http.StatusOK, status)

		counts, ok := body["counts"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(1), counts[models.StatusSubmitted])
	})

	t.Run("deny without a reason is rejected", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, "/api/admin/requests/1/deny", appAuth, `{}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, models.CodeValidation, body["code"])
	})

	t.Run("approve provisions and implements", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, "/api/admin/requests/1/approve", appAuth,
			`{"note":"Approved for design team"}`)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["app_added"])
		assert.Equal(t, models.StatusImplemented, body["status"])

		// The requester now holds the assignment.
		status, body = doJSON(t, app, http.MethodGet, "/api/apps/me", empAuth, "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("second approval returns 400", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, "/api/admin/requests/1/approve", appAuth, `{}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, models.CodeConflict, body["code"])
	})

	t.Run("resubmitting for an app now in the store is refused", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, "/api/requests", empAuth,
			`{"app_name":"Figma","justification":"Again"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, models.CodeConflict, body["code"])
	})
}

func TestCancelRequestOverHTTP(t *testing.T) {
	s, app := newTestServer(t)
	owner := createTestUser(t, s.db, "owner", models.RoleEmployee)
	other := createTestUser(t, s.db, "other", models.RoleEmployee)
	ownerAuth := authHeader(t, s, owner)
	otherAuth := authHeader(t, s, other)

	status, _ := doJSON(t, app, http.MethodPost, "/api/requests", ownerAuth,
		`{"app_name":"Miro","justification":"Workshops"}`)
	require.Equal(t, http.StatusCreated, status)

	t.Run("non-owner cannot cancel", func(t *testing.T) {
		status, _ := doJSON(t, app, http.MethodDelete, "/api/requests/1", otherAuth, "")
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("owner cancels", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodDelete, "/api/requests/1", ownerAuth, "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, models.StatusCancelled, body["status"])
	})

	t.Run("cancelled request cannot be cancelled again", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodDelete, "/api/requests/1", ownerAuth, "")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, models.CodeConflict, body["code"])
	})
}

func TestRequestVisibilityOverHTTP(t *testing.T) {
	s, app := newTestServer(t)
	alice := createTestUser(t, s.db, "alice", models.RoleEmployee)
	bob := createTestUser(t, s.db, "bob", models.RoleEmployee)
	admin := createTestUser(t, s.db, "boss", models.RoleAdmin)

	status, _ := doJSON(t, app, http.MethodPost, "/api/requests", authHeader(t, s, alice),
		`{"app_name":"Notion","justification":"Docs"}`)
	require.Equal(t, http.StatusCreated, status)

	t.Run("another employee gets 404 on the detail view", func(t *testing.T) {
		status, _ := doJSON(t, app, http.MethodGet, "/api/requests/1", authHeader(t, s, bob), "")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("admin sees any request", func(t *testing.T) {
		status, _ := doJSON(t, app, http.MethodGet, "/api/requests/1", authHeader(t, s, admin), "")
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("admin listing with all=true includes other users' requests", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodGet, "/api/requests?all=true", authHeader(t, s, admin), "")
		require.Equal(t, http.StatusOK, status)
		requests, ok := body["requests"].([]any)
		require.True(t, ok)
		assert.Len(t, requests, 1)
	})

	t.Run("employee listing stays scoped to own requests", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodGet, "/api/requests?all=true", authHeader(t, s, bob), "")
		require.Equal(t, http.StatusOK, status)
		requests, _ := body["requests"].([]any)
		assert.Empty(t, requests)
	})
}
