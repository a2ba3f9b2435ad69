package permissions

import (
	"testing"

	"atrium/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestStaticChecker(t *testing.T) {
	checker := NewStaticChecker()

	tests := []struct {
		role string
		slug string
		want bool
	}{
		{models.RoleEmployee, RequestsCreate, true},
		{models.RoleEmployee, StoreView, true},
		{models.RoleEmployee, RequestsApprove, false},
		{models.RoleEmployee, CatalogSync, false},
		{models.RoleApprover, RequestsApprove, true},
		{models.RoleApprover, RequestsDeny, true},
		{models.RoleApprover, RequestsCreate, true},
		{models.RoleApprover, CatalogManage, false},
		{models.RoleAdmin, CatalogSync, true},
		{models.RoleAdmin, AssignmentsManage, true},
		{models.RoleAdmin, RequestsApprove, true},
		{models.RoleRoot, CatalogManage, true},
		{models.RoleRoot, RequestsCreate, true},
		{"unknown", RequestsCreate, false},
		{"", StoreView, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, checker.Allowed(tt.role, tt.slug), "%s / %s", tt.role, tt.slug)
	}
}
