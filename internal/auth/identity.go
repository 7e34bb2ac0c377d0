package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// RoleClaim is the token claim carrying the caller's role
const RoleClaim = "role"

// Identity is the authenticated caller of a request.
type Identity struct {
	Subject string
	Role    string
	Claims  jwt.MapClaims
}

type identityKey struct{}

// WithIdentity stores the identity in the context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by the auth middleware
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

func identityFromClaims(claims jwt.MapClaims) *Identity {
	sub, _ := claims.GetSubject()
	role, _ := claims[RoleClaim].(string)
	return &Identity{Subject: sub, Role: role, Claims: claims}
}
