// Package auth verifies bearer tokens and gates privileged operations such
// as the local-data migration.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
)

// RFC 6750 Section 3 error codes
const (
	// errorCodeInvalidRequest indicates the request is missing a required parameter,
	// includes an unsupported parameter or parameter value, or is otherwise malformed.
	errorCodeInvalidRequest = "invalid_request"

	// errorCodeInvalidToken indicates the access token provided is expired, revoked,
	// malformed, or invalid for other reasons.
	errorCodeInvalidToken = "invalid_token"

	// errorCodeInsufficientScope indicates the token is valid but does not
	// grant the privilege the request needs.
	errorCodeInsufficientScope = "insufficient_scope"
)

// defaultRealm is the default protection space identifier
const defaultRealm = "safety-sync"

var errMissingBearer = errors.New("missing or malformed authorization header")

// Authenticator validates bearer tokens and checks roles.
type Authenticator struct {
	validator       TokenValidator
	privilegedRoles []string
	realm           string
}

// NewAuthenticator creates an Authenticator. Tokens whose role claim is one
// of privilegedRoles pass RequirePrivileged.
func NewAuthenticator(validator TokenValidator, privilegedRoles []string, realm string) (*Authenticator, error) {
	if validator == nil {
		return nil, errors.New("token validator is required")
	}
	if len(privilegedRoles) == 0 {
		return nil, errors.New("at least one privileged role must be configured")
	}
	if realm == "" {
		realm = defaultRealm
	}
	return &Authenticator{
		validator:       validator,
		privilegedRoles: privilegedRoles,
		realm:           realm,
	}, nil
}

// IsPrivileged reports whether the identity holds one of the privileged roles
func (a *Authenticator) IsPrivileged(id *Identity) bool {
	return id != nil && slices.Contains(a.privilegedRoles, id.Role)
}

// Middleware authenticates every request and stores the Identity in the
// request context. Requests without a valid token get 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r)
		if err != nil {
			slog.Warn("Token extraction failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			a.writeError(w, http.StatusUnauthorized, errorCodeInvalidRequest, errMissingBearer.Error())
			return
		}

		claims, err := a.validator.ValidateToken(r.Context(), token)
		if err != nil {
			slog.Warn("Token validation failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			a.writeError(w, http.StatusUnauthorized, errorCodeInvalidToken, "token validation failed")
			return
		}

		id := identityFromClaims(claims)
		slog.Debug("Authentication successful", "subject", id.Subject, "role", id.Role, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequirePrivileged authenticates the request and additionally rejects
// callers without a privileged role with 403.
func (a *Authenticator) RequirePrivileged(next http.Handler) http.Handler {
	return a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		if !a.IsPrivileged(id) {
			slog.Warn("Privileged operation denied",
				"subject", id.Subject,
				"role", id.Role,
				"path", r.URL.Path,
				"method", r.Method)
			a.writeError(w, http.StatusForbidden, errorCodeInsufficientScope, "a privileged role is required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errMissingBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingBearer
	}
	return token, nil
}

// sanitizeHeaderValue removes characters that could enable header injection attacks.
// This includes newlines, carriage returns, and unescaped quotes.
func sanitizeHeaderValue(s string) string {
	if !strings.ContainsAny(s, "\r\n\"") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	// Escape quotes for use in quoted-string (RFC 7230)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// writeError writes a JSON error response with RFC 6750 compliant WWW-Authenticate header.
func (a *Authenticator) writeError(w http.ResponseWriter, status int, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="%s", error="%s", error_description="%s"`,
		sanitizeHeaderValue(a.realm), errCode, sanitizeHeaderValue(description)))
	w.WriteHeader(status)

	resp := struct {
		Error string `json:"error"`
	}{
		Error: description,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
