package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/studyabroad/services/applications/internal/apperrors"
)

func TestHeaderResolver(t *testing.T) {
	resolver := NewHeaderResolver()
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	req.Header.Set("X-User-Id", userID.String())
	req.Header.Set("X-Role", "staff")

	identity, err := resolver.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, userID, identity.UserID)
	require.Equal(t, RoleStaff, identity.Role)
}

func TestHeaderResolverDefaultsRole(t *testing.T) {
	resolver := NewHeaderResolver()

	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	req.Header.Set("X-User-Id", uuid.New().String())

	identity, err := resolver.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, RoleStudent, identity.Role)
}

func TestHeaderResolverRejectsMissingUser(t *testing.T) {
	resolver := NewHeaderResolver()

	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	_, err := resolver.Resolve(req)
	require.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}

func TestHeaderResolverRejectsMalformedUser(t *testing.T) {
	resolver := NewHeaderResolver()

	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	req.Header.Set("X-User-Id", "not-a-uuid")

	_, err := resolver.Resolve(req)
	require.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}

func TestHeaderResolverRejectsUnknownRole(t *testing.T) {
	resolver := NewHeaderResolver()

	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	req.Header.Set("X-User-Id", uuid.New().String())
	req.Header.Set("X-Role", "admin")

	_, err := resolver.Resolve(req)
	require.True(t, apperrors.Is(err, apperrors.KindUnauthorized))
}
