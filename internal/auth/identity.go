package auth

import (
	"net/http"

	"github.com/google/uuid"

	"example.com/studyabroad/services/applications/internal/apperrors"
)

// Role is the actor role carried by a resolved identity.
type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleStaff
}

// Identity is the resolved actor for a request. Every engine call takes an
// Identity argument explicitly; there is no implicit request-scoped user.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

// Resolver turns request credentials into an Identity. Authentication itself
// is owned by the accounts service; this is the seam where a real token
// verifier plugs in.
type Resolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// HeaderResolver resolves identity from the X-User-Id and X-Role headers set
// by the API gateway after token verification.
type HeaderResolver struct{}

// NewHeaderResolver creates a header-based resolver.
func NewHeaderResolver() *HeaderResolver {
	return &HeaderResolver{}
}

// Resolve implements Resolver.
func (hr *HeaderResolver) Resolve(r *http.Request) (Identity, error) {
	rawID := r.Header.Get("X-User-Id")
	if rawID == "" {
		return Identity{}, apperrors.New(apperrors.KindUnauthorized, "no resolvable actor")
	}

	userID, err := uuid.Parse(rawID)
	if err != nil {
		return Identity{}, apperrors.Wrap(err, apperrors.KindUnauthorized, "malformed actor identifier")
	}

	role := Role(r.Header.Get("X-Role"))
	if role == "" {
		role = RoleStudent
	}
	if !role.Valid() {
		return Identity{}, apperrors.Newf(apperrors.KindUnauthorized, "unknown role %q", role)
	}

	return Identity{UserID: userID, Role: role}, nil
}
