package server

import (
	"net/http"
	"testing"

	"atrium/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupAndLogin(t *testing.T) {
	_, app := newTestServer(t)

	status, body := doJSON(t, app, http.MethodPost, "/api/auth/signup", "",
		`{"username":"casey","email":"casey@example.com","password":"password1234"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["token"])

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, models.RoleEmployee, user["role"])

	t.Run("login with the new account", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, "/api/auth/login", "",
			`{"email":"casey@example.com","password":"password1234"}`)
		assert.Equal(t, http.StatusOK, status)
		assert.NotEmpty(t, body["token"])
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		status, _ := doJSON(t, app, http.MethodPost, "/api/auth/login", "",
			`{"email":"casey@example.com","password":"wrong-password"}`)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, "/api/auth/signup", "",
			`{"username":"casey2","email":"casey@example.com","password":"password1234"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, models.CodeConflict, body["code"])
	})
}

func TestSignupValidation(t *testing.T) {
	_, app := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing fields", `{"username":"x"}`},
		{"bad email", `{"username":"x","email":"not-an-email","password":"password1234"}`},
		{"short password", `{"username":"x","email":"x@example.com","password":"short"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, models.CodeValidation, body["code"])
		})
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	_, app := newTestServer(t)

	status, _ := doJSON(t, app, http.MethodGet, "/api/store", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, app, http.MethodGet, "/api/requests", "Bearer not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}
