package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"ainotebook/internal/apperr"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// claimsKey is the context key for the verified token claims
const claimsKey contextKey = "claims"

var (
	// ErrUserIDNotFound is returned when no user is attached to the context
	ErrUserIDNotFound = errors.New("user_id not found in context")
)

// RequireAuth rejects requests without a valid access token in the
// Authorization header.
func RequireAuth(tokens *TokenManager) echo.MiddlewareFunc {
	return authenticate(tokens, false)
}

// RequireAuthQuery is RequireAuth that also accepts the token as a
// ?token= query parameter, for clients such as browsers opening a
// WebSocket that cannot set headers.
func RequireAuthQuery(tokens *TokenManager) echo.MiddlewareFunc {
	return authenticate(tokens, true)
}

func authenticate(tokens *TokenManager, allowQuery bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c.Request(), allowQuery)
			if token == "" {
				return apperr.Auth("access token is required")
			}
			claims, err := tokens.ParseAccess(token)
			if err != nil {
				return apperr.Auth("invalid access token")
			}
			c.SetRequest(c.Request().WithContext(WithClaims(c.Request().Context(), claims)))
			return next(c)
		}
	}
}

// extractToken reads a bearer token from the Authorization header and,
// when allowed, from the token query parameter.
func extractToken(r *http.Request, allowQuery bool) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetUserID extracts the authenticated user id from context
func GetUserID(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	if !ok || claims == nil || claims.UserID == "" {
		return "", ErrUserIDNotFound
	}
	return claims.UserID, nil
}

// CurrentUserID returns the id of the user RequireAuth attached to the
// request context.
func CurrentUserID(c echo.Context) (string, error) {
	userID, err := GetUserID(c.Request().Context())
	if errors.Is(err, ErrUserIDNotFound) {
		return "", apperr.Auth("access token is required")
	}
	return userID, err
}
