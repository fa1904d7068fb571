package apperrors

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, KindBadRequest.HTTPStatus())
	require.Equal(t, http.StatusUnauthorized, KindUnauthorized.HTTPStatus())
	require.Equal(t, http.StatusForbidden, KindForbidden.HTTPStatus())
	require.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	require.Equal(t, http.StatusConflict, KindConflict.HTTPStatus())
	require.Equal(t, http.StatusUnprocessableEntity, KindUnprocessableRequirement.HTTPStatus())
	require.Equal(t, http.StatusUnprocessableEntity, KindUnprocessableTransition.HTTPStatus())
	require.Equal(t, http.StatusBadGateway, KindUpstream.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, Kind("surprise").HTTPStatus())
}

func TestKindOfSeesThroughWrapping(t *testing.T) {
	base := New(KindConflict, "already submitted")
	wrapped := errors.Wrap(base, "transition failed")

	require.Equal(t, KindConflict, KindOf(wrapped))
	require.True(t, Is(wrapped, KindConflict))
	require.False(t, Is(wrapped, KindNotFound))
	require.Equal(t, base, AsError(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("plain")
	require.Equal(t, Kind(""), KindOf(err))
	require.Nil(t, AsError(err))
}

func TestErrorFormatting(t *testing.T) {
	err := Wrap(errors.New("connection refused"), KindUpstream, "catalog request failed")
	require.Equal(t, "upstream_error: catalog request failed: connection refused", err.Error())
	require.EqualError(t, errors.Cause(err.Err), "connection refused")
}

func TestWithDetails(t *testing.T) {
	details := []string{"a", "b"}
	err := New(KindUnprocessableRequirement, "mandatory documents missing").WithDetails(details)
	require.Equal(t, details, err.Details)
}
